package chat

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

type Rating string

const (
	RatingHelpful    Rating = "helpful"
	RatingNotHelpful Rating = "not-helpful"
)

func (r Rating) Valid() bool { return r == RatingHelpful || r == RatingNotHelpful }

// KnowledgeSearchTool is the tool name whose helpful feedback promotes a
// session into the curation feed.
const KnowledgeSearchTool = "searchKnowledge"

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Context struct {
	ProductsViewed        []string    `json:"productsViewed,omitempty"`
	CategoriesInterested  []string    `json:"categoriesInterested,omitempty"`
	PriceRange            *PriceRange `json:"priceRange,omitempty"`
	CustomDesignRequested bool        `json:"customDesignRequested,omitempty"`
}

// Merge returns c with the signals of o folded in. Lists are deduplicated
// and keep first-seen order; the price range widens to cover both.
func (c Context) Merge(o Context) Context {
	out := Context{
		ProductsViewed:        appendUnique(append([]string(nil), c.ProductsViewed...), o.ProductsViewed...),
		CategoriesInterested:  appendUnique(append([]string(nil), c.CategoriesInterested...), o.CategoriesInterested...),
		CustomDesignRequested: c.CustomDesignRequested || o.CustomDesignRequested,
	}
	switch {
	case c.PriceRange == nil && o.PriceRange == nil:
	case c.PriceRange == nil:
		pr := *o.PriceRange
		out.PriceRange = &pr
	case o.PriceRange == nil:
		pr := *c.PriceRange
		out.PriceRange = &pr
	default:
		pr := *c.PriceRange
		if o.PriceRange.Min < pr.Min {
			pr.Min = o.PriceRange.Min
		}
		if o.PriceRange.Max > pr.Max {
			pr.Max = o.PriceRange.Max
		}
		out.PriceRange = &pr
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup && v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

type Conversation struct {
	ID             uint64                      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID      string                      `gorm:"type:varchar(128);uniqueIndex;not null" json:"sessionId"`
	UserID         *string                     `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	Context        datatypes.JSONType[Context] `json:"context"`
	IsTrainingData bool                        `gorm:"index;not null" json:"isTrainingData"`
	MessageCount   int                         `gorm:"not null" json:"messageCount"`
	CreatedAt      time.Time                   `json:"createdAt"`
	UpdatedAt      time.Time                   `json:"updatedAt"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID        uint64                      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string                      `gorm:"type:varchar(128);not null;index:uniq_conv_msg_pos,unique,priority:1" json:"-"`
	Position  int                         `gorm:"not null;index:uniq_conv_msg_pos,unique,priority:2" json:"index"`
	Role      Role                        `gorm:"type:varchar(16);not null" json:"role"`
	Content   string                      `gorm:"type:text;not null" json:"content"`
	ToolsUsed datatypes.JSONSlice[string] `json:"toolsUsed,omitempty"`
	CreatedAt time.Time                   `json:"timestamp"`
}

func (Message) TableName() string { return "conversation_messages" }

func (m Message) UsedTool(name string) bool {
	for _, t := range m.ToolsUsed {
		if t == name {
			return true
		}
	}
	return false
}

type Feedback struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID    string    `gorm:"type:varchar(128);index;not null" json:"-"`
	MessageIndex int       `gorm:"not null" json:"messageIndex"`
	Rating       Rating    `gorm:"type:varchar(16);not null" json:"rating"`
	Comment      *string   `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt    time.Time `json:"timestamp"`
}

func (Feedback) TableName() string { return "conversation_feedback" }

// Session is the read model of one conversation.
type Session struct {
	Conversation
	Messages []Message  `json:"messages"`
	Feedback []Feedback `json:"feedback"`
}
