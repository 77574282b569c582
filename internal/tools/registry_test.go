package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/chat"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"gorm.io/gorm"
)

type memWishlist struct {
	mu    sync.Mutex
	items map[string]map[string]bool
}

func (w *memWishlist) Toggle(_ context.Context, owner, id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.items == nil {
		w.items = map[string]map[string]bool{}
	}
	if w.items[owner] == nil {
		w.items[owner] = map[string]bool{}
	}
	if w.items[owner][id] {
		delete(w.items[owner], id)
		return false, nil
	}
	w.items[owner][id] = true
	return true, nil
}

func (w *memWishlist) IsInWishlist(_ context.Context, owner, id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.items[owner][id], nil
}

func (w *memWishlist) size(owner string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items[owner])
}

type fakeKnowledge struct {
	entries []knowledge.Entry
	err     error
	queries []string
}

func (k *fakeKnowledge) Search(_ context.Context, q string, _ knowledge.Category, _ int) ([]knowledge.Entry, error) {
	k.queries = append(k.queries, q)
	return k.entries, k.err
}

type fakeImages struct {
	calls []string
	err   error
}

func (f *fakeImages) Request(_ context.Context, sessionID, toolCallID, prompt string) (*imagegen.Ticket, error) {
	f.calls = append(f.calls, sessionID+"|"+toolCallID+"|"+prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &imagegen.Ticket{ToolCallID: toolCallID, Status: imagegen.StatusPending}, nil
}

type recordingNav struct{ visited []string }

func (n *recordingNav) GoToProduct(id string) { n.visited = append(n.visited, id) }

func openCatalog(t *testing.T) *catalog.Repo {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&catalog.Product{}))
	repo := catalog.NewRepo(db)

	ctx := context.Background()
	prices := []float64{2500, 4800, 7200, 9999, 10000, 10001, 15000, 3100}
	for i, price := range prices {
		require.NoError(t, repo.Create(ctx, &catalog.Product{
			ID:       fmt.Sprintf("ring-%02d", i),
			Name:     fmt.Sprintf("Ring %d", i),
			Category: catalog.EngagementRings,
			Price:    price,
			Metal:    "Platinum",
			Carat:    1.5,
			InStock:  true,
		}))
	}
	require.NoError(t, repo.Create(ctx, &catalog.Product{ID: "studs-01", Name: "Diamond Studs", Category: catalog.Earrings, Price: 900, InStock: true}))
	return repo
}

type fixture struct {
	reg       *Registry
	wishlist  *memWishlist
	knowledge *fakeKnowledge
	images    *fakeImages
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{wishlist: &memWishlist{}, knowledge: &fakeKnowledge{}, images: &fakeImages{}}
	f.reg = NewRegistry(Deps{
		Catalog:   openCatalog(t),
		Wishlist:  f.wishlist,
		Knowledge: f.knowledge,
		Images:    f.images,
	})
	return f
}

func TestInvoke_SchemaViolationsNeverReachExecute(t *testing.T) {
	calls := 0
	spy := Definition{
		Name: SearchProducts,
		Schema: Schema{
			Properties: map[string]Property{
				"category": {Type: TypeString, Enum: []string{"Earrings"}},
				"maxPrice": {Type: TypeNumber, Minimum: ptr(0.0)},
				"limit":    {Type: TypeInteger, Minimum: ptr(1.0), Maximum: ptr(10.0)},
				"query":    {Type: TypeString, MinLength: ptr(3)},
			},
			Required: []string{"query"},
		},
		Execute: func(context.Context, Call, Args) (string, error) {
			calls++
			return "ok", nil
		},
	}
	reg := newRegistry(nil, spy)

	bad := []string{
		`not json`,
		`[1,2]`,
		`{}`,
		`{"query":"abc","category":"Watches"}`,
		`{"query":"abc","maxPrice":-1}`,
		`{"query":"abc","maxPrice":"cheap"}`,
		`{"query":"abc","limit":11}`,
		`{"query":"abc","limit":2.5}`,
		`{"query":"ab"}`,
		`{"query":"abc","color":"D"}`,
		`{"query":42}`,
	}
	for _, in := range bad {
		_, err := reg.Invoke(context.Background(), Call{}, string(SearchProducts), json.RawMessage(in))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "input %s", in)
		require.Equal(t, SearchProducts, verr.Tool)
	}
	require.Zero(t, calls)

	out, err := reg.Invoke(context.Background(), Call{}, string(SearchProducts), json.RawMessage(`{"query":"abc","limit":3,"category":null}`))
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 1, calls)

	_, err = reg.Invoke(context.Background(), Call{}, "deleteEverything", json.RawMessage(`{}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ErrorContains(t, err, "unknown tool")
}

func TestInvoke_ReportsRejectedField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		tool, input, field string
	}{
		{"viewProduct", `{}`, "productId"},
		{"viewProduct", `{"productId":"   "}`, "productId"},
		{"viewProduct", `{"productId":"p1","size":7}`, "size"},
		{"searchProducts", `{"limit":0}`, "limit"},
		{"searchProducts", `{"metal":"Tin"}`, "metal"},
		{"generateDesign", `{"description":"ring"}`, "description"},
	}
	for _, tc := range cases {
		_, err := f.reg.Invoke(ctx, Call{}, tc.tool, json.RawMessage(tc.input))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "%s %s", tc.tool, tc.input)
		require.Equal(t, tc.field, verr.Field, "%s %s", tc.tool, tc.input)
		require.NotEmpty(t, verr.Reason)
	}
	require.Empty(t, f.images.calls)
}

func TestInvoke_ExecutionFailuresAreWrapped(t *testing.T) {
	boom := errors.New("catalog unreachable")
	reg := newRegistry(nil,
		Definition{Name: ViewProduct, Execute: func(context.Context, Call, Args) (string, error) { return "", boom }},
		Definition{Name: AddToWishlist, Execute: func(context.Context, Call, Args) (string, error) { panic("nil map") }},
	)

	_, err := reg.Invoke(context.Background(), Call{}, string(ViewProduct), nil)
	var eerr *ExecutionError
	require.ErrorAs(t, err, &eerr)
	require.ErrorIs(t, err, boom)

	_, err = reg.Invoke(context.Background(), Call{}, string(AddToWishlist), nil)
	require.ErrorAs(t, err, &eerr)
	require.ErrorContains(t, err, "panic")
}

func TestRegistry_SpecsExposeSchemasOnly(t *testing.T) {
	f := newFixture(t)
	specs := f.reg.Specs()
	require.Len(t, specs, 5)

	var names []string
	for _, s := range specs {
		names = append(names, s.Name)
		var schema map[string]any
		require.NoError(t, json.Unmarshal(s.Parameters, &schema))
		require.Equal(t, "object", schema["type"])
		require.Equal(t, false, schema["additionalProperties"])
		require.NotEmpty(t, s.Description)
	}
	require.Equal(t, []string{"searchProducts", "viewProduct", "addToWishlist", "searchKnowledge", "generateDesign"}, names)
	require.Equal(t, "Generating design...", f.reg.ProgressLabel("generateDesign"))
	require.Equal(t, "Working...", f.reg.ProgressLabel("nope"))

	_, err := ParseName("nope")
	require.ErrorIs(t, err, ErrUnknownTool)
	require.Equal(t, chat.KnowledgeSearchTool, string(SearchKnowledge))
}

func TestSearchProducts_EngagementRingsUnderBudget(t *testing.T) {
	f := newFixture(t)

	out, err := f.reg.Invoke(context.Background(), Call{SessionID: "s"}, "searchProducts",
		json.RawMessage(`{"category":"Engagement Rings","maxPrice":10000}`))
	require.NoError(t, err)

	var got []catalog.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotEmpty(t, got)
	require.LessOrEqual(t, len(got), 5)
	for _, p := range got {
		require.LessOrEqual(t, p.Price, 10000.0)
		require.Equal(t, catalog.EngagementRings, p.Category)
	}

	var raw []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	for _, k := range []string{"id", "name", "price", "category", "metal", "carat", "inStock"} {
		require.Contains(t, raw[0], k)
	}

	_, err = f.reg.Invoke(context.Background(), Call{}, "searchProducts", json.RawMessage(`{"minPrice":500,"maxPrice":100}`))
	var eerr *ExecutionError
	require.ErrorAs(t, err, &eerr)
}

func TestAddToWishlist_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call := Call{SessionID: "sess-w", ToolCallID: "c1"}

	out, err := f.reg.Invoke(ctx, call, "addToWishlist", json.RawMessage(`{"productId":"ring-01"}`))
	require.NoError(t, err)
	require.Equal(t, "Added Ring 1 to the wishlist.", out)
	require.Equal(t, 1, f.wishlist.size("sess-w"))

	out, err = f.reg.Invoke(ctx, call, "addToWishlist", json.RawMessage(`{"productId":"ring-01"}`))
	require.NoError(t, err)
	require.Equal(t, "Product ring-01 is already in the wishlist.", out)
	require.Equal(t, 1, f.wishlist.size("sess-w"))

	in, _ := f.wishlist.IsInWishlist(ctx, "sess-w", "ring-01")
	require.True(t, in, "second add must not toggle the product out")

	_, err = f.reg.Invoke(ctx, call, "addToWishlist", json.RawMessage(`{"productId":"missing"}`))
	var eerr *ExecutionError
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, 1, f.wishlist.size("sess-w"))
}

func TestViewProduct_Navigates(t *testing.T) {
	f := newFixture(t)
	nav := &recordingNav{}

	out, err := f.reg.Invoke(context.Background(), Call{Nav: nav}, "viewProduct", json.RawMessage(`{"productId":"studs-01"}`))
	require.NoError(t, err)
	require.Contains(t, out, "Diamond Studs")
	require.Equal(t, []string{"studs-01"}, nav.visited)

	_, err = f.reg.Invoke(context.Background(), Call{Nav: nav}, "viewProduct", json.RawMessage(`{"productId":"nope"}`))
	require.ErrorContains(t, err, "product nope not found")
	require.Len(t, nav.visited, 1)
}

func TestSearchKnowledge_SignalsMissingGrounding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.reg.Invoke(ctx, Call{}, "searchKnowledge", json.RawMessage(`{"query":"tanzanite"}`))
	require.NoError(t, err)
	require.Equal(t, NoKnowledgeFound, out)

	f.knowledge.err = errors.New("db down")
	out, err = f.reg.Invoke(ctx, Call{}, "searchKnowledge", json.RawMessage(`{"query":"halo"}`))
	require.NoError(t, err, "knowledge backend errors degrade to no grounding")
	require.Equal(t, NoKnowledgeFound, out)

	f.knowledge.err = nil
	f.knowledge.entries = []knowledge.Entry{{Title: "Halo settings", Category: knowledge.CategoryRingStyles, Content: "A halo frames the center stone."}}
	out, err = f.reg.Invoke(ctx, Call{}, "searchKnowledge", json.RawMessage(`{"query":"halo","category":"ring-styles"}`))
	require.NoError(t, err)
	require.JSONEq(t, `[{"title":"Halo settings","category":"ring-styles","content":"A halo frames the center stone."}]`, out)

	_, err = f.reg.Invoke(ctx, Call{}, "searchKnowledge", json.RawMessage(`{"query":"halo","category":"watches"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestGenerateDesign_EnqueuesWithoutWaiting(t *testing.T) {
	f := newFixture(t)

	out, err := f.reg.Invoke(context.Background(), Call{SessionID: "s1", ToolCallID: "call-9"}, "generateDesign",
		json.RawMessage(`{"description":"rose gold ring with a halo setting"}`))
	require.NoError(t, err)
	require.Equal(t, []string{"s1|call-9|rose gold ring with a halo setting"}, f.images.calls)

	var ticket map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ticket))
	require.Equal(t, "call-9", ticket["toolCallId"])
	require.Equal(t, "pending", ticket["status"])

	_, err = f.reg.Invoke(context.Background(), Call{SessionID: "s1", ToolCallID: "call-10"}, "generateDesign", json.RawMessage(`{"description":"ring"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, f.images.calls, 1)

	f.images.err = imagegen.ErrDuplicateRequest
	_, err = f.reg.Invoke(context.Background(), Call{SessionID: "s1", ToolCallID: "call-9"}, "generateDesign",
		json.RawMessage(`{"description":"rose gold ring with a halo setting"}`))
	require.ErrorIs(t, err, imagegen.ErrDuplicateRequest)
}
