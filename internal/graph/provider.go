// Package graph implements the GraphProvider: entity extraction from memory
// content, node/edge upsert into Postgres, and explore/path/insights
// queries over the resulting in-memory graph, grounded on the teacher's
// gorm-backed plugin style and the dominikbraun/graph in-memory algorithms
// package for traversal.
package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corenexus/memory-service/internal/config"
	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/model"
	"github.com/corenexus/memory-service/internal/registry/extractor"
)

// entityNamePattern is the whitelist every entity-name input is checked
// against before any query is formed: alphanumerics, dashes, spaces.
var entityNamePattern = regexp.MustCompile(`^[A-Za-z0-9\- ]{1,255}$`)

// maxAllowedDepth bounds explore/path traversal depth.
const maxAllowedDepth = 5

func validateEntityName(name string) error {
	if !entityNamePattern.MatchString(name) {
		return errs.New(errs.KindInvalidInput, "entity name must be alphanumerics, dashes or spaces, 1-255 characters")
	}
	return nil
}

func validateMaxDepth(depth int) error {
	if depth > maxAllowedDepth {
		return errs.New(errs.KindInvalidInput, fmt.Sprintf("max_depth must be <= %d", maxAllowedDepth))
	}
	return nil
}

// Provider implements memory-driven entity/relationship graph maintenance
// and read-side traversal queries. Its Postgres pool initializes lazily on
// first use so startup never blocks on the graph backend when disabled.
type Provider struct {
	cfg        *config.Config
	dsn        string
	extractor  extractor.Extractor
	normalizer *normalizer

	mu sync.RWMutex
	db *gorm.DB
}

// New builds a disabled-aware Provider. If cfg.GraphEnabled is false, every
// operation returns errs.KindGraphDisabled immediately.
func New(cfg *config.Config, dsn string, ext extractor.Extractor) (*Provider, error) {
	norm, err := newNormalizer(cfg.GraphNormCacheSize)
	if err != nil {
		return nil, err
	}
	return &Provider{cfg: cfg, dsn: dsn, extractor: ext, normalizer: norm}, nil
}

func (p *Provider) pool(ctx context.Context) (*gorm.DB, error) {
	p.mu.RLock()
	if p.db != nil {
		defer p.mu.RUnlock()
		return p.db, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}
	db, err := openGormDB(p.dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph: connect", err)
	}
	p.db = db
	return db, nil
}

func (p *Provider) requireEnabled() error {
	if !p.cfg.GraphEnabled {
		return errs.New(errs.KindGraphDisabled, "graph provider is disabled")
	}
	return nil
}

// Ingest extracts mentions from mem.Content, normalizes and upserts nodes,
// records mentions, and infers relationships between mentions found close
// together, per the configured window.
func (p *Provider) Ingest(ctx context.Context, mem model.Memory) error {
	if err := p.requireEnabled(); err != nil {
		return err
	}
	db, err := p.pool(ctx)
	if err != nil {
		return err
	}

	mentions, err := p.extractor.ExtractMentions(ctx, mem.Content)
	if err != nil {
		return errs.Wrap(errs.KindStoreFailed, "graph: extract mentions", err)
	}
	if len(mentions) == 0 {
		return nil
	}

	type resolved struct {
		node      model.GraphNode
		charStart int
		charEnd   int
		conf      float64
	}
	resolvedMentions := make([]resolved, 0, len(mentions))

	for _, m := range mentions {
		normName := p.normalizer.normalize(m.EntityType, m.Text)
		if normName == "" {
			continue
		}
		node, err := p.upsertNode(ctx, db, m.EntityType, m.Text, normName, mem.ImportanceScore)
		if err != nil {
			log.Error("graph: upsert node failed", "err", err)
			continue
		}
		if err := p.recordMention(ctx, db, mem.ID, node.ID, m.CharStart, m.CharEnd, m.Confidence); err != nil {
			log.Error("graph: record mention failed", "err", err)
		}
		resolvedMentions = append(resolvedMentions, resolved{node: node, charStart: m.CharStart, charEnd: m.CharEnd, conf: m.Confidence})
	}

	for i := 0; i < len(resolvedMentions); i++ {
		for j := i + 1; j < len(resolvedMentions); j++ {
			a, b := resolvedMentions[i], resolvedMentions[j]
			if a.node.ID == b.node.ID {
				continue
			}
			distance := b.charStart - a.charEnd
			if distance < 0 {
				distance = a.charStart - b.charEnd
			}
			if distance > p.cfg.GraphMentionWindow {
				continue
			}
			start, end := a.charEnd, b.charStart
			if start > end {
				start, end = b.charEnd, a.charStart
			}
			if start < 0 {
				start = 0
			}
			if end > len(mem.Content) {
				end = len(mem.Content)
			}
			connecting := ""
			if start <= end {
				connecting = mem.Content[start:end]
			}
			rel := inferRelationship(a.node.EntityType, b.node.EntityType, a.conf, b.conf, distance, p.cfg.GraphMentionWindow, connecting)
			if rel.strength < p.cfg.ADMMinStrength {
				continue
			}
			if err := p.upsertRelationship(ctx, db, a.node.ID, b.node.ID, rel); err != nil {
				log.Error("graph: upsert relationship failed", "err", err)
			}
		}
	}
	return nil
}

// BulkIngest runs Ingest over a batch of memories sequentially, continuing
// past individual failures and returning the count that succeeded.
func (p *Provider) BulkIngest(ctx context.Context, mems []model.Memory) (int, error) {
	if err := p.requireEnabled(); err != nil {
		return 0, err
	}
	ok := 0
	for _, mem := range mems {
		if err := p.Ingest(ctx, mem); err != nil {
			log.Error("graph: bulk ingest item failed", "memoryId", mem.ID, "err", err)
			continue
		}
		ok++
	}
	return ok, nil
}

// upsertNode inserts a new node or, on conflict, increments its mention
// count and raises its importance to max(existing, admScore) — admScore is
// the ADM score of the memory that produced this mention, standing in for
// a per-entity score since no separate entity-level ADM pass exists.
func (p *Provider) upsertNode(ctx context.Context, db *gorm.DB, entityType model.EntityType, rawName, normName string, admScore float64) (model.GraphNode, error) {
	node := model.GraphNode{
		ID:              uuid.New(),
		EntityType:      entityType,
		EntityName:      rawName,
		NormalizedName:  normName,
		ImportanceScore: admScore,
		MentionCount:    1,
		FirstSeen:       time.Now(),
		LastSeen:        time.Now(),
	}
	err := db.WithContext(ctx).Exec(`
		INSERT INTO graph_nodes (id, entity_type, entity_name, normalized_name, importance_score, mention_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, 1, now(), now())
		ON CONFLICT (entity_type, normalized_name) DO UPDATE SET
			mention_count = graph_nodes.mention_count + 1,
			importance_score = GREATEST(graph_nodes.importance_score, EXCLUDED.importance_score),
			last_seen = now()`,
		node.ID, node.EntityType, node.EntityName, node.NormalizedName, node.ImportanceScore,
	).Error
	if err != nil {
		return model.GraphNode{}, err
	}

	var existing model.GraphNode
	err = db.WithContext(ctx).Raw(`SELECT id, entity_type, entity_name, normalized_name, importance_score, mention_count, first_seen, last_seen
		FROM graph_nodes WHERE entity_type = ? AND normalized_name = ?`, entityType, normName).Scan(&existing).Error
	if err != nil {
		return model.GraphNode{}, err
	}
	return existing, nil
}

func (p *Provider) recordMention(ctx context.Context, db *gorm.DB, memoryID, entityID uuid.UUID, charStart, charEnd int, confidence float64) error {
	return db.WithContext(ctx).Exec(`
		INSERT INTO memory_entity_map (memory_id, entity_id, char_start, char_end, confidence)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (memory_id, entity_id, char_start) DO UPDATE SET char_end = EXCLUDED.char_end, confidence = EXCLUDED.confidence`,
		memoryID, entityID, charStart, charEnd, confidence,
	).Error
}

func (p *Provider) upsertRelationship(ctx context.Context, db *gorm.DB, fromID, toID uuid.UUID, rel inferredRelationship) error {
	return db.WithContext(ctx).Exec(`
		INSERT INTO graph_relationships (id, from_id, to_id, relationship_type, strength, confidence, occurrence_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, 1, now(), now())
		ON CONFLICT (from_id, to_id, relationship_type) DO UPDATE SET
			strength = GREATEST(graph_relationships.strength, EXCLUDED.strength),
			occurrence_count = graph_relationships.occurrence_count + 1,
			last_seen = now()`,
		uuid.New(), fromID, toID, rel.relType, rel.strength, rel.confidence,
	).Error
}

// Stats reports node and relationship counts.
type Stats struct {
	NodeCount         int64
	RelationshipCount int64
}

func (p *Provider) Stats(ctx context.Context) (Stats, error) {
	if err := p.requireEnabled(); err != nil {
		return Stats{}, err
	}
	db, err := p.pool(ctx)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	if err := db.WithContext(ctx).Raw("SELECT count(*) FROM graph_nodes").Scan(&s.NodeCount).Error; err != nil {
		return Stats{}, errs.Wrap(errs.KindBackendUnavailable, "graph stats", err)
	}
	if err := db.WithContext(ctx).Raw("SELECT count(*) FROM graph_relationships").Scan(&s.RelationshipCount).Error; err != nil {
		return Stats{}, errs.Wrap(errs.KindBackendUnavailable, "graph stats", err)
	}
	return s, nil
}

func identityHash(id uuid.UUID) uuid.UUID { return id }

func (p *Provider) loadWeightedGraph(ctx context.Context, db *gorm.DB) (graph.Graph[uuid.UUID, uuid.UUID], error) {
	g := graph.New(identityHash, graph.Directed(), graph.Weighted())

	var nodes []model.GraphNode
	if err := db.WithContext(ctx).Raw("SELECT id FROM graph_nodes").Scan(&nodes).Error; err != nil {
		return nil, err
	}
	for _, n := range nodes {
		_ = g.AddVertex(n.ID)
	}

	var edges []model.GraphRelationship
	if err := db.WithContext(ctx).Raw("SELECT from_id, to_id, strength FROM graph_relationships").Scan(&edges).Error; err != nil {
		return nil, err
	}
	for _, e := range edges {
		// Edge weight is inverse strength: a stronger relationship is a
		// shorter hop for shortest-path queries.
		weight := int(1 / (e.Strength + 0.01))
		_ = g.AddEdge(e.FromID, e.ToID, graph.EdgeWeight(weight))
		_ = g.AddEdge(e.ToID, e.FromID, graph.EdgeWeight(weight))
	}
	return g, nil
}

// Explore performs a breadth-first walk out from the node matching
// entityName, bounded both by maxDepth hops and by cfg.GraphMaxExploreNodes
// total nodes, neighbors visited in descending edge-strength order.
func (p *Provider) Explore(ctx context.Context, entityName string, maxDepth int) ([]model.GraphNode, error) {
	if err := p.requireEnabled(); err != nil {
		return nil, err
	}
	if err := validateEntityName(entityName); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = p.cfg.GraphMaxPathDepth
	}
	if err := validateMaxDepth(maxDepth); err != nil {
		return nil, err
	}
	db, err := p.pool(ctx)
	if err != nil {
		return nil, err
	}

	start, err := p.findNodeByName(ctx, db, entityName)
	if err != nil {
		return nil, err
	}

	g, err := p.loadWeightedGraph(ctx, db)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph explore: load graph", err)
	}

	visited, err := boundedBFS(g, start.ID, maxDepth, p.cfg.GraphMaxExploreNodes)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph explore: bfs", err)
	}

	return p.loadNodes(ctx, db, visited)
}

// boundedBFS walks g breadth-first from start, never stepping past
// maxDepth hops and never visiting more than maxNodes nodes total. At each
// step neighbors are visited in descending edge-strength order (ascending
// stored weight, since weight is inverse strength).
func boundedBFS(g graph.Graph[uuid.UUID, uuid.UUID], start uuid.UUID, maxDepth, maxNodes int) ([]uuid.UUID, error) {
	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	type queued struct {
		id    uuid.UUID
		depth int
	}
	visited := map[uuid.UUID]bool{start: true}
	order := []uuid.UUID{start}
	queue := []queued{{id: start, depth: 0}}

	for len(queue) > 0 && len(order) < maxNodes {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		type neighbor struct {
			id     uuid.UUID
			weight int
		}
		neighbors := make([]neighbor, 0, len(adjacency[cur.id]))
		for to, edge := range adjacency[cur.id] {
			neighbors = append(neighbors, neighbor{id: to, weight: edge.Properties.Weight})
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].weight < neighbors[j].weight })

		for _, n := range neighbors {
			if visited[n.id] {
				continue
			}
			visited[n.id] = true
			order = append(order, n.id)
			queue = append(queue, queued{id: n.id, depth: cur.depth + 1})
			if len(order) >= maxNodes {
				break
			}
		}
	}
	return order, nil
}

// Path finds the strongest-weighted path between two named entities.
func (p *Provider) Path(ctx context.Context, fromName, toName string) ([]model.GraphNode, error) {
	if err := p.requireEnabled(); err != nil {
		return nil, err
	}
	if err := validateEntityName(fromName); err != nil {
		return nil, err
	}
	if err := validateEntityName(toName); err != nil {
		return nil, err
	}
	db, err := p.pool(ctx)
	if err != nil {
		return nil, err
	}
	from, err := p.findNodeByName(ctx, db, fromName)
	if err != nil {
		return nil, err
	}
	to, err := p.findNodeByName(ctx, db, toName)
	if err != nil {
		return nil, err
	}

	g, err := p.loadWeightedGraph(ctx, db)
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph path: load graph", err)
	}

	path, err := graph.ShortestPath(g, from.ID, to.ID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "no path found", err)
	}
	return p.loadNodes(ctx, db, path)
}

// insightTopEdges bounds how many of a memory's strongest internal edges
// Insights reports per entity.
const insightTopEdges = 5

// EntityInsight is one entity mentioned in a memory, its global importance,
// and the strongest edges it shares with the memory's other entities.
type EntityInsight struct {
	Node     model.GraphNode
	TopEdges []model.GraphRelationship
}

// Insights answers "entities mentioned in this memory, their global
// importance, and the strongest edges among them" for a single memory.
func (p *Provider) Insights(ctx context.Context, memoryID uuid.UUID) ([]EntityInsight, error) {
	if err := p.requireEnabled(); err != nil {
		return nil, err
	}
	db, err := p.pool(ctx)
	if err != nil {
		return nil, err
	}

	var nodes []model.GraphNode
	err = db.WithContext(ctx).Raw(`
		SELECT n.id, n.entity_type, n.entity_name, n.normalized_name, n.importance_score, n.mention_count, n.first_seen, n.last_seen
		FROM graph_nodes n
		JOIN memory_entity_map m ON m.entity_id = n.id
		WHERE m.memory_id = ?`, memoryID).Scan(&nodes).Error
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph insights: load entities", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}

	var edges []model.GraphRelationship
	err = db.WithContext(ctx).Raw(`
		SELECT id, from_id, to_id, relationship_type, strength, confidence, occurrence_count, first_seen, last_seen
		FROM graph_relationships
		WHERE from_id = ANY(?) AND to_id = ANY(?)
		ORDER BY strength DESC`, ids, ids).Scan(&edges).Error
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph insights: load edges", err)
	}

	edgesByNode := make(map[uuid.UUID][]model.GraphRelationship)
	for _, e := range edges {
		edgesByNode[e.FromID] = append(edgesByNode[e.FromID], e)
		if e.FromID != e.ToID {
			edgesByNode[e.ToID] = append(edgesByNode[e.ToID], e)
		}
	}

	insights := make([]EntityInsight, 0, len(nodes))
	for _, n := range nodes {
		top := edgesByNode[n.ID]
		if len(top) > insightTopEdges {
			top = top[:insightTopEdges]
		}
		insights = append(insights, EntityInsight{Node: n, TopEdges: top})
	}
	return insights, nil
}

func (p *Provider) findNodeByName(ctx context.Context, db *gorm.DB, name string) (model.GraphNode, error) {
	var node model.GraphNode
	err := db.WithContext(ctx).Raw(`SELECT id, entity_type, entity_name, normalized_name, importance_score, mention_count, first_seen, last_seen
		FROM graph_nodes WHERE normalized_name = ? LIMIT 1`, normalize(model.EntityOther, name)).Scan(&node).Error
	if err != nil {
		return model.GraphNode{}, errs.Wrap(errs.KindBackendUnavailable, "graph: find node", err)
	}
	if node.ID == uuid.Nil {
		return model.GraphNode{}, errs.New(errs.KindNotFound, fmt.Sprintf("entity %q not found", name))
	}
	return node, nil
}

func (p *Provider) loadNodes(ctx context.Context, db *gorm.DB, ids []uuid.UUID) ([]model.GraphNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var nodes []model.GraphNode
	err := db.WithContext(ctx).Raw(`SELECT id, entity_type, entity_name, normalized_name, importance_score, mention_count, first_seen, last_seen
		FROM graph_nodes WHERE id = ANY(?)`, ids).Scan(&nodes).Error
	if err != nil {
		return nil, errs.Wrap(errs.KindBackendUnavailable, "graph: load nodes", err)
	}
	return nodes, nil
}
