package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"Sparse", "Dense", "Latent", "Deep", "Quantized",
	"Pruned", "Frozen", "Tuned", "Distilled", "Recurrent",
	"Residual", "Stochastic", "Convex", "Causal", "Robust",
	"Fused", "Masked", "Stacked", "Linear", "Gated",
}

var nouns = []string{
	"Tensor", "Encoder", "Decoder", "Kernel", "Gradient",
	"Neuron", "Epoch", "Embedding", "Sampler", "Optimizer",
	"Attention", "Perceptron", "Layer", "Checkpoint", "Batch",
	"Vector", "Logit", "Token", "Adapter", "Diffuser",
}

// GenerateNickname creates a random nickname in the format "Adjective_Noun_XXXX"
// where XXXX is a random 4-digit number
func GenerateNickname() (string, error) {
	adjIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(adjectives))))
	if err != nil {
		return "", fmt.Errorf("failed to generate random adjective: %w", err)
	}

	nounIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(nouns))))
	if err != nil {
		return "", fmt.Errorf("failed to generate random noun: %w", err)
	}

	suffix, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}

	nickname := fmt.Sprintf("%s_%s_%04d",
		adjectives[adjIdx.Int64()],
		nouns[nounIdx.Int64()],
		suffix.Int64(),
	)

	return nickname, nil
}
