package graph

import (
	"math"

	"github.com/corenexus/memory-service/internal/adm"
	"github.com/corenexus/memory-service/internal/model"
)

// inferredRelationship is one candidate relationship between two mentions
// seen close together in the same memory.
type inferredRelationship struct {
	relType    model.RelationshipType
	strength   float64
	confidence float64
}

// relationshipRule maps an ordered pair of entity types to the
// relationship type inference assigns them when mentioned near each other.
var relationshipRules = map[[2]model.EntityType]model.RelationshipType{
	{model.EntityPerson, model.EntityOrganization}: model.RelationshipWorksFor,
	{model.EntityPerson, model.EntityTechnology}:   model.RelationshipUses,
	{model.EntityOrganization, model.EntityProduct}: model.RelationshipPartOf,
	{model.EntityProduct, model.EntityTechnology}:   model.RelationshipUses,
	{model.EntityEvent, model.EntityPerson}:         model.RelationshipMentions,
	{model.EntityEvent, model.EntityOrganization}:   model.RelationshipMentions,
}

// inferRelationshipType looks up the directed rule for (fromType, toType),
// falling back to the reverse pair, then to RELATES_TO.
func inferRelationshipType(fromType, toType model.EntityType) model.RelationshipType {
	if rt, ok := relationshipRules[[2]model.EntityType{fromType, toType}]; ok {
		return rt
	}
	if rt, ok := relationshipRules[[2]model.EntityType{toType, fromType}]; ok {
		return rt
	}
	return model.RelationshipRelatesTo
}

// inferRelationship computes strength and confidence for two mentions
// charDistance apart, within window W, rescored by the ADM intelligence
// signal of the text connecting them.
func inferRelationship(fromType, toType model.EntityType, fromConf, toConf float64, charDistance int, windowW int, connectingText string) inferredRelationship {
	raw := math.Exp(-float64(charDistance)/float64(windowW)) * fromConf * toConf
	signal := adm.RelationshipSignal(connectingText)
	strength := clamp01(raw * (0.5 + 0.5*signal))
	return inferredRelationship{
		relType:    inferRelationshipType(fromType, toType),
		strength:   strength,
		confidence: clamp01((fromConf + toConf) / 2),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
