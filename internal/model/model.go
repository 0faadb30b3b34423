// Package model holds the persisted shapes shared across Core Nexus's
// vector store, ADM scorer, and graph provider.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the deployment-wide embedding width. Mixing models with a
// different width is out of scope; writers reject vectors of any other length.
const EmbeddingDim = 1536

// EntityType enumerates the recognized graph node categories.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityTechnology   EntityType = "TECHNOLOGY"
	EntityLocation     EntityType = "LOCATION"
	EntityConcept      EntityType = "CONCEPT"
	EntityEvent        EntityType = "EVENT"
	EntityProduct      EntityType = "PRODUCT"
	EntityOther        EntityType = "OTHER"
)

// RelationshipType is an open enum; unrecognized connectives default to RelatesTo.
type RelationshipType string

const (
	RelationshipWorksFor  RelationshipType = "WORKS_FOR"
	RelationshipUses      RelationshipType = "USES"
	RelationshipPartOf    RelationshipType = "PART_OF"
	RelationshipMentions  RelationshipType = "MENTIONS"
	RelationshipRelatesTo RelationshipType = "RELATES_TO"
	RelationshipCausedBy  RelationshipType = "CAUSED_BY"
)

// Memory is the atomic unit stored by the vector providers.
//
// Invariants: ID is identical across every provider holding this memory;
// len(Embedding) == EmbeddingDim; Content is never rewritten after creation.
type Memory struct {
	ID               uuid.UUID              `json:"id" gorm:"primaryKey;type:uuid"`
	Content          string                 `json:"content" gorm:"not null"`
	Embedding        []float32              `json:"-" gorm:"-"` // provider-specific column/encoding, never gorm-managed directly
	Metadata         map[string]interface{} `json:"metadata" gorm:"type:jsonb;serializer:json;not null;default:'{}'"`
	ImportanceScore  float64                `json:"importanceScore" gorm:"not null;default:0"`
	LowQuality       bool                   `json:"lowQuality" gorm:"not null;default:false"`
	UserID           *string                `json:"userId,omitempty"`
	ConversationID   *string                `json:"conversationId,omitempty"`
	CreatedAt        time.Time              `json:"createdAt" gorm:"not null;default:now()"`
	LastAccessed     time.Time              `json:"lastAccessed" gorm:"not null;default:now()"`
	AccessCount       int64                 `json:"accessCount" gorm:"not null;default:0"`
}

// TableName implements gorm.Tabler.
func (Memory) TableName() string { return "memories" }

// GraphNode is an entity extracted from one or more memories.
//
// Invariant: (EntityType, NormalizedName) is unique across nodes.
type GraphNode struct {
	ID              uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	EntityType      EntityType `json:"entityType" gorm:"not null;uniqueIndex:idx_graph_nodes_type_name"`
	EntityName      string     `json:"entityName" gorm:"not null"`
	NormalizedName  string     `json:"-" gorm:"not null;uniqueIndex:idx_graph_nodes_type_name;column:normalized_name"`
	ImportanceScore float64    `json:"importanceScore" gorm:"not null;default:0"`
	MentionCount    int64      `json:"mentionCount" gorm:"not null;default:0"`
	FirstSeen       time.Time  `json:"firstSeen" gorm:"not null;default:now()"`
	LastSeen        time.Time  `json:"lastSeen" gorm:"not null;default:now()"`
}

// TableName implements gorm.Tabler.
func (GraphNode) TableName() string { return "graph_nodes" }

// GraphRelationship is a directed, scored edge between two GraphNodes.
//
// Invariant: (FromID, ToID, RelationshipType) is unique; FromID != ToID;
// Strength >= the configured min_strength threshold.
type GraphRelationship struct {
	ID               uuid.UUID        `json:"id" gorm:"primaryKey;type:uuid"`
	FromID           uuid.UUID        `json:"fromId" gorm:"not null;type:uuid;uniqueIndex:idx_graph_rel_from_to_type"`
	ToID             uuid.UUID        `json:"toId" gorm:"not null;type:uuid;uniqueIndex:idx_graph_rel_from_to_type"`
	RelationshipType RelationshipType `json:"relationshipType" gorm:"not null;uniqueIndex:idx_graph_rel_from_to_type"`
	Strength         float64          `json:"strength" gorm:"not null"`
	Confidence       float64          `json:"confidence" gorm:"not null"`
	OccurrenceCount  int64            `json:"occurrenceCount" gorm:"not null;default:1"`
	FirstSeen        time.Time        `json:"firstSeen" gorm:"not null;default:now()"`
	LastSeen         time.Time        `json:"lastSeen" gorm:"not null;default:now()"`
}

// TableName implements gorm.Tabler.
func (GraphRelationship) TableName() string { return "graph_relationships" }

// MemoryEntityMap is a single recorded mention of an entity inside a memory.
//
// Invariant: (MemoryID, EntityID, CharStart) is unique; multiple mentions per
// pair are allowed at distinct character spans.
type MemoryEntityMap struct {
	MemoryID   uuid.UUID `json:"memoryId" gorm:"primaryKey;type:uuid"`
	EntityID   uuid.UUID `json:"entityId" gorm:"primaryKey;type:uuid"`
	CharStart  int       `json:"charStart" gorm:"primaryKey"`
	CharEnd    int       `json:"charEnd" gorm:"not null"`
	Confidence float64   `json:"confidence" gorm:"not null"`
}

// TableName implements gorm.Tabler.
func (MemoryEntityMap) TableName() string { return "memory_entity_map" }
