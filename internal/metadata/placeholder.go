package metadata

import "fmt"

// PlaceholderImage maps a mint address to a stable seeded image URL. The
// seed is the sum of the address characters modulo 1000.
func PlaceholderImage(mint string) string {
	sum := 0
	for _, r := range mint {
		sum += int(r)
	}
	return fmt.Sprintf("https://picsum.photos/seed/%d/300/300", sum%1000)
}

// PlaceholderName is shown when neither on-chain nor off-chain metadata has a name
func PlaceholderName(mint string) string {
	if len(mint) > 8 {
		mint = mint[:8]
	}
	return "NFT " + mint
}
