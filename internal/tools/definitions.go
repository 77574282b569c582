package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"go.uber.org/zap"
)

const NoKnowledgeFound = "No specific knowledge found for this question. Answer from general jewelry expertise and do not cite a source."

type Catalog interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Product, int64, error)
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

// Wishlist membership is scoped by owner; the assistant uses the session id.
type Wishlist interface {
	Toggle(ctx context.Context, owner, productID string) (bool, error)
	IsInWishlist(ctx context.Context, owner, productID string) (bool, error)
}

type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, category knowledge.Category, limit int) ([]knowledge.Entry, error)
}

type ImageRequester interface {
	Request(ctx context.Context, sessionID, toolCallID, prompt string) (*imagegen.Ticket, error)
}

type Deps struct {
	Catalog   Catalog
	Wishlist  Wishlist
	Knowledge KnowledgeSearcher
	Images    ImageRequester
	Logger    *zap.Logger
}

// NewRegistry builds the fixed snapshot of assistant tools.
func NewRegistry(d Deps) *Registry {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return newRegistry(d.Logger,
		searchProductsTool(d.Catalog),
		viewProductTool(d.Catalog),
		addToWishlistTool(d.Catalog, d.Wishlist),
		searchKnowledgeTool(d.Knowledge, d.Logger),
		generateDesignTool(d.Images),
	)
}

func searchProductsTool(c Catalog) Definition {
	return Definition{
		Name:          SearchProducts,
		Description:   "Search the jewelry catalog by category, price range, metal and diamond shape. Returns product summaries.",
		ProgressLabel: "Searching products...",
		Schema: Schema{
			Properties: map[string]Property{
				"category": {Type: TypeString, Enum: catalog.Categories, Description: "Product category"},
				"minPrice": {Type: TypeNumber, Minimum: ptr(0.0), Description: "Minimum price in USD"},
				"maxPrice": {Type: TypeNumber, Minimum: ptr(0.0), Description: "Maximum price in USD"},
				"metal":    {Type: TypeString, Enum: catalog.Metals},
				"shape":    {Type: TypeString, Enum: catalog.Shapes},
				"limit":    {Type: TypeInteger, Minimum: ptr(1.0), Maximum: ptr(10.0), Description: "Number of results, default 5"},
			},
		},
		Execute: func(ctx context.Context, _ Call, args Args) (string, error) {
			f := catalog.Filter{
				Category: catalog.Category(args.String("category")),
				Metal:    args.String("metal"),
				Shape:    args.String("shape"),
				Limit:    5,
			}
			if v, ok := args.Float("minPrice"); ok {
				f.MinPrice = &v
			}
			if v, ok := args.Float("maxPrice"); ok {
				f.MaxPrice = &v
			}
			if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
				return "", errors.New("minPrice must not exceed maxPrice")
			}
			if n, ok := args.Int("limit"); ok {
				f.Limit = int(n)
			}

			products, _, err := c.List(ctx, f)
			if err != nil {
				return "", fmt.Errorf("catalog unavailable: %w", err)
			}
			out := make([]catalog.Summary, 0, len(products))
			for _, p := range products {
				out = append(out, p.Summary())
			}
			return encode(out)
		},
	}
}

func viewProductTool(c Catalog) Definition {
	return Definition{
		Name:          ViewProduct,
		Description:   "Open a product's detail page for the shopper and return its details.",
		ProgressLabel: "Opening product...",
		Schema: Schema{
			Properties: map[string]Property{
				"productId": {Type: TypeString, MinLength: ptr(1)},
			},
			Required: []string{"productId"},
		},
		Execute: func(ctx context.Context, call Call, args Args) (string, error) {
			id := args.String("productId")
			p, err := c.Get(ctx, id)
			if err != nil {
				if errors.Is(err, catalog.ErrProductNotFound) {
					return "", fmt.Errorf("product %s not found", id)
				}
				return "", fmt.Errorf("catalog unavailable: %w", err)
			}
			if call.Nav != nil {
				call.Nav.GoToProduct(p.ID)
			}
			return encode(p)
		},
	}
}

func addToWishlistTool(c Catalog, w Wishlist) Definition {
	return Definition{
		Name:          AddToWishlist,
		Description:   "Add a product to the shopper's wishlist. Adding a product that is already saved changes nothing.",
		ProgressLabel: "Updating wishlist...",
		Schema: Schema{
			Properties: map[string]Property{
				"productId": {Type: TypeString, MinLength: ptr(1)},
			},
			Required: []string{"productId"},
		},
		Execute: func(ctx context.Context, call Call, args Args) (string, error) {
			id := args.String("productId")
			in, err := w.IsInWishlist(ctx, call.SessionID, id)
			if err != nil {
				return "", fmt.Errorf("wishlist unavailable: %w", err)
			}
			if in {
				return fmt.Sprintf("Product %s is already in the wishlist.", id), nil
			}

			p, err := c.Get(ctx, id)
			if err != nil {
				if errors.Is(err, catalog.ErrProductNotFound) {
					return "", fmt.Errorf("product %s not found", id)
				}
				return "", fmt.Errorf("catalog unavailable: %w", err)
			}
			added, err := w.Toggle(ctx, call.SessionID, id)
			if err != nil {
				return "", fmt.Errorf("wishlist unavailable: %w", err)
			}
			if !added {
				// a concurrent add landed between the check and the toggle
				if _, err := w.Toggle(ctx, call.SessionID, id); err != nil {
					return "", fmt.Errorf("wishlist unavailable: %w", err)
				}
			}
			return fmt.Sprintf("Added %s to the wishlist.", p.Name), nil
		},
	}
}

type knowledgeResult struct {
	Title    string             `json:"title"`
	Category knowledge.Category `json:"category"`
	Content  string             `json:"content"`
}

func searchKnowledgeTool(k KnowledgeSearcher, logger *zap.Logger) Definition {
	categories := make([]string, 0, len(knowledge.Categories()))
	for _, c := range knowledge.Categories() {
		categories = append(categories, string(c))
	}
	return Definition{
		Name:          SearchKnowledge,
		Description:   "Look up curated jewelry knowledge (diamond education, metals, care, sizing, certification, styles). Use it before answering factual questions.",
		ProgressLabel: "Searching knowledge base...",
		Schema: Schema{
			Properties: map[string]Property{
				"query":    {Type: TypeString, MinLength: ptr(1), MaxLength: ptr(500)},
				"category": {Type: TypeString, Enum: categories},
			},
			Required: []string{"query"},
		},
		Execute: func(ctx context.Context, call Call, args Args) (string, error) {
			entries, err := k.Search(ctx, args.String("query"), knowledge.Category(args.String("category")), 0)
			if err != nil {
				// missing grounding is not a tool failure
				logger.Warn("knowledge search failed", zap.String("tool_call_id", call.ToolCallID), zap.Error(err))
				return NoKnowledgeFound, nil
			}
			if len(entries) == 0 {
				return NoKnowledgeFound, nil
			}
			out := make([]knowledgeResult, 0, len(entries))
			for _, e := range entries {
				out = append(out, knowledgeResult{Title: e.Title, Category: e.Category, Content: e.Content})
			}
			return encode(out)
		},
	}
}

type designTicket struct {
	ToolCallID string          `json:"toolCallId"`
	Status     imagegen.Status `json:"status"`
	Message    string          `json:"message"`
}

func generateDesignTool(images ImageRequester) Definition {
	return Definition{
		Name:          GenerateDesign,
		Description:   "Start generating a photorealistic image of a custom jewelry design. Returns immediately; the image is delivered asynchronously.",
		ProgressLabel: "Generating design...",
		Schema: Schema{
			Properties: map[string]Property{
				"description": {Type: TypeString, MinLength: ptr(10), MaxLength: ptr(1000), Description: "What the piece should look like"},
			},
			Required: []string{"description"},
		},
		Execute: func(ctx context.Context, call Call, args Args) (string, error) {
			t, err := images.Request(ctx, call.SessionID, call.ToolCallID, args.String("description"))
			if err != nil {
				return "", err
			}
			return encode(designTicket{
				ToolCallID: t.ToolCallID,
				Status:     t.Status,
				Message:    "Design generation started. The image will appear when it is ready.",
			})
		},
	}
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
