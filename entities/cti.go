package entities

import (
	"fmt"
	"time"
)

// CTIRecord is a Category/Type/Item taxonomy entry tickets are classified into.
type CTIRecord struct {
	ID                       uint   `gorm:"primaryKey" json:"id"`
	BUNumber                 string `gorm:"index:idx_cti_key,unique" json:"bu_number"`
	Category                 string `gorm:"index:idx_cti_key,unique;index" json:"category"`
	Type                     string `gorm:"index:idx_cti_key,unique" json:"type"`
	Item                     string `gorm:"index:idx_cti_key,unique" json:"item"`
	ResolverGroup            string `gorm:"index" json:"resolver_group"`
	RequestType              string `json:"request_type"` // incident|request
	SLA                      string `json:"sla"`
	ServiceDescription       string `json:"service_description"`
	BUDescription            string `json:"bu_description"`
	ResolverGroupDescription string `json:"resolver_group_description"`

	// Derived from the descriptive text above; little-endian float32 blob.
	EmbeddingVector []byte `json:"-"`
	// Weighted average over few-shot example embeddings. Only trusted once
	// ExampleCount >= 3; until then similarity falls back to EmbeddingVector.
	ExampleBasedEmbedding []byte     `json:"-"`
	ExampleCount          int        `json:"example_count"`
	LastExampleAdded      *time.Time `json:"last_example_added"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *CTIRecord) HasSufficientExamples() bool { return c.ExampleCount >= 3 }

// EffectiveEmbedding is the vector used for similarity ranking.
func (c *CTIRecord) EffectiveEmbedding() []byte {
	if c.HasSufficientExamples() && len(c.ExampleBasedEmbedding) > 0 {
		return c.ExampleBasedEmbedding
	}
	return c.EmbeddingVector
}

// EmbeddingText is the textual representation the raw embedding is derived from.
func (c *CTIRecord) EmbeddingText() string {
	return fmt.Sprintf("%s %s %s %s %s %s %s %s %s",
		c.BUNumber, c.Category, c.Type, c.Item,
		c.RequestType, c.SLA,
		c.ServiceDescription, c.BUDescription, c.ResolverGroupDescription)
}

func (c *CTIRecord) String() string {
	return fmt.Sprintf("%s - %s - %s", c.Category, c.Type, c.Item)
}
