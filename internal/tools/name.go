package tools

import "fmt"

// Name is the closed set of tools the assistant may call.
type Name string

const (
	SearchProducts  Name = "searchProducts"
	ViewProduct     Name = "viewProduct"
	AddToWishlist   Name = "addToWishlist"
	SearchKnowledge Name = "searchKnowledge"
	GenerateDesign  Name = "generateDesign"
)

func Names() []Name {
	return []Name{SearchProducts, ViewProduct, AddToWishlist, SearchKnowledge, GenerateDesign}
}

func ParseName(s string) (Name, error) {
	switch Name(s) {
	case SearchProducts:
		return SearchProducts, nil
	case ViewProduct:
		return ViewProduct, nil
	case AddToWishlist:
		return AddToWishlist, nil
	case SearchKnowledge:
		return SearchKnowledge, nil
	case GenerateDesign:
		return GenerateDesign, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
}
