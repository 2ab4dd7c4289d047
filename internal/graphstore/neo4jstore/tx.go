package neo4jstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

const edgeReturn = `RETURN r.uid AS uid, s.uid AS source, t.uid AS target,
	r.format AS format, r.headers AS headers, r.block AS block, r.display AS display`

// cypherTx implements graphstore.Tx on an explicit Neo4j transaction.
type cypherTx struct {
	tx neo4j.ExplicitTransaction
}

func (t *cypherTx) collect(ctx context.Context, what, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: %s: %w", what, mapConstraint(err))
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: %s: %w", what, mapConstraint(err))
	}
	return records, nil
}

func (t *cypherTx) count(ctx context.Context, what, cypher string, params map[string]any) (int, error) {
	records, err := t.collect(ctx, what, cypher, params)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return getIntFromRecord(records[0], "n"), nil
}

func (t *cypherTx) nodes(ctx context.Context, what, cypher string, params map[string]any) ([]models.Node, error) {
	records, err := t.collect(ctx, what, cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.Node, 0, len(records))
	for _, r := range records {
		n, _, err := neo4j.GetRecordValue[neo4j.Node](r, "n")
		if err != nil {
			return nil, fmt.Errorf("neo4jstore: %s: %w", what, err)
		}
		out = append(out, nodeFromGraph(n))
	}
	return out, nil
}

func (t *cypherTx) node(ctx context.Context, what, cypher string, params map[string]any) (*models.Node, error) {
	nodes, err := t.nodes(ctx, what, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("neo4jstore: %s: %w", what, apperr.ErrNotFound)
	}
	return &nodes[0], nil
}

func (t *cypherTx) edges(ctx context.Context, what, cypher string, params map[string]any) ([]models.Edge, error) {
	records, err := t.collect(ctx, what, cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.Edge, 0, len(records))
	for _, r := range records {
		out = append(out, models.Edge{
			ID:       getStringFromRecord(r, "uid"),
			SourceID: getStringFromRecord(r, "source"),
			TargetID: getStringFromRecord(r, "target"),
			Link: models.Link{
				Format:  models.LinkFormat(getStringFromRecord(r, "format")),
				Headers: getStringSliceFromRecord(r, "headers"),
				Block:   getStringFromRecord(r, "block"),
				Display: getStringFromRecord(r, "display"),
			},
		})
	}
	return out, nil
}

func (t *cypherTx) Node(ctx context.Context, id string) (*models.Node, error) {
	return t.node(ctx, "node "+id, `MATCH (n:Node {uid: $uid}) RETURN n`, map[string]any{"uid": id})
}

func (t *cypherTx) DocumentByPath(ctx context.Context, path string) (*models.Node, error) {
	return t.node(ctx, "document "+path, `MATCH (n:Document {path: $path}) RETURN n`, map[string]any{"path": path})
}

func (t *cypherTx) PlaceholderByName(ctx context.Context, name string) (*models.Node, error) {
	return t.node(ctx, "placeholder "+name, `MATCH (n:Placeholder {name_key: $key}) RETURN n`,
		map[string]any{"key": models.NameKey(name)})
}

func (t *cypherTx) NodesByName(ctx context.Context, name string) ([]models.Node, error) {
	return t.nodes(ctx, "nodes by name",
		`MATCH (n:Node {name_key: $key}) RETURN n ORDER BY n:Placeholder, n.path`,
		map[string]any{"key": models.NameKey(name)})
}

func (t *cypherTx) GetDocument(ctx context.Context, path string) (*models.Document, error) {
	records, err := t.collect(ctx, "document "+path, `
		MATCH (n:Document {path: $path})
		RETURN n, n.content AS content, n.aliases AS aliases, n.properties AS properties, n.embedding AS embedding
	`, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("neo4jstore: document %s: %w", path, apperr.ErrNotFound)
	}
	r := records[0]
	n, _, err := neo4j.GetRecordValue[neo4j.Node](r, "n")
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: document %s: %w", path, err)
	}
	node := nodeFromGraph(n)
	emb, _ := r.Get("embedding")

	doc := &models.Document{
		Path:       node.Path,
		Name:       node.Name,
		Title:      node.Title,
		Content:    getStringFromRecord(r, "content"),
		Checksum:   node.Checksum,
		Tags:       node.Tags,
		Aliases:    getStringSliceFromRecord(r, "aliases"),
		Properties: decodeProperties(getStringFromRecord(r, "properties")),
		ModifiedAt: node.ModifiedAt,
		Embedding:  float32Slice(emb),
	}
	doc.Chunks, err = t.Chunks(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *cypherTx) CreateDocument(ctx context.Context, doc *models.Document) (*models.Node, error) {
	id := uuid.NewString()
	name := doc.Name
	if name == "" {
		name = models.DeriveName(doc.Path)
	}

	chunks := make([]map[string]any, len(doc.Chunks))
	chunkIDs := make([]string, len(doc.Chunks))
	for i, c := range doc.Chunks {
		chunkIDs[i] = uuid.NewString()
		chunks[i] = map[string]any{
			"uid":       chunkIDs[i],
			"ordinal":   c.Ordinal,
			"name":      c.Name,
			"content":   c.Content,
			"embedding": toFloat64s(c.Embedding),
		}
	}

	_, err := t.collect(ctx, "create document "+doc.Path, `
		CREATE (d:Node:Document {
			uid: $uid, name: $name, name_key: $key, path: $path, title: $title,
			content: $content, checksum: $checksum, tags: $tags, aliases: $aliases,
			properties: $properties, modified_at: $modified
		})
		SET d.embedding = $embedding
		WITH d
		UNWIND $chunks AS ch
		CREATE (c:Chunk {uid: ch.uid, ordinal: ch.ordinal, name: ch.name, content: ch.content})
		SET c.embedding = ch.embedding
		CREATE (d)-[:CONTAINS]->(c)
	`, map[string]any{
		"uid":        id,
		"name":       name,
		"key":        models.NameKey(name),
		"path":       doc.Path,
		"title":      doc.Title,
		"content":    doc.Content,
		"checksum":   doc.Checksum,
		"tags":       nonNil(doc.Tags),
		"aliases":    nonNil(doc.Aliases),
		"properties": encodeProperties(doc.Properties),
		"modified":   doc.ModifiedAt,
		"embedding":  toFloat64s(doc.Embedding),
		"chunks":     chunks,
	})
	if err != nil {
		return nil, err
	}

	if len(chunkIDs) > 0 {
		pairs := make([]map[string]any, 0, len(chunkIDs)-1)
		for i := 0; i+1 < len(chunkIDs); i++ {
			pairs = append(pairs, map[string]any{"from": chunkIDs[i], "to": chunkIDs[i+1]})
		}
		_, err = t.collect(ctx, "link chunks of "+doc.Path, `
			MATCH (d:Document {uid: $uid}), (h:Chunk {uid: $head})
			CREATE (d)-[:HEAD_CHUNK]->(h)
			WITH d
			UNWIND $pairs AS p
			MATCH (a:Chunk {uid: p.from}), (b:Chunk {uid: p.to})
			CREATE (a)-[:NEXT_CHUNK]->(b)
		`, map[string]any{"uid": id, "head": chunkIDs[0], "pairs": pairs})
		if err != nil {
			return nil, err
		}
	}

	return &models.Node{
		ID:         id,
		Kind:       models.KindDocument,
		Name:       name,
		Path:       doc.Path,
		Title:      doc.Title,
		Checksum:   doc.Checksum,
		Tags:       doc.Tags,
		ModifiedAt: doc.ModifiedAt,
	}, nil
}

func (t *cypherTx) CreatePlaceholder(ctx context.Context, name string) (*models.Node, error) {
	id := uuid.NewString()
	_, err := t.collect(ctx, "create placeholder "+name,
		`CREATE (:Node:Placeholder {uid: $uid, name: $name, name_key: $key})`,
		map[string]any{"uid": id, "name": name, "key": models.NameKey(name)})
	if err != nil {
		return nil, err
	}
	return &models.Node{ID: id, Kind: models.KindPlaceholder, Name: name}, nil
}

func (t *cypherTx) DeleteNode(ctx context.Context, id string) error {
	n, err := t.count(ctx, "delete node "+id, `
		MATCH (x:Node {uid: $uid})
		OPTIONAL MATCH (x)-[:CONTAINS]->(c:Chunk)
		WITH x, collect(c) AS chunks
		FOREACH (c IN chunks | DETACH DELETE c)
		DETACH DELETE x
		RETURN count(*) AS n
	`, map[string]any{"uid": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("neo4jstore: delete node %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (t *cypherTx) Connect(ctx context.Context, sourceID, targetID string, link models.Link) (*models.Edge, error) {
	id := uuid.NewString()
	records, err := t.collect(ctx, "connect", `
		MATCH (s:Document {uid: $source}), (t:Node {uid: $target})
		CREATE (s)-[r:MENTIONED {uid: $uid, format: $format, headers: $headers, block: $block, display: $display}]->(t)
		RETURN r.uid AS uid
	`, map[string]any{
		"source":  sourceID,
		"target":  targetID,
		"uid":     id,
		"format":  string(link.Format),
		"headers": nonNil(link.Headers),
		"block":   link.Block,
		"display": link.Display,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("neo4jstore: connect %s -> %s: %w", sourceID, targetID, apperr.ErrNotFound)
	}
	return &models.Edge{ID: id, SourceID: sourceID, TargetID: targetID, Link: link}, nil
}

// RepointIncoming recreates each edge on the new target; Cypher cannot
// change a relationship's end node in place.
func (t *cypherTx) RepointIncoming(ctx context.Context, fromID, toID string) (int, error) {
	return t.count(ctx, "repoint", `
		MATCH (to:Node {uid: $to})
		MATCH (s:Node)-[r:MENTIONED]->(from:Node {uid: $from})
		WHERE s.uid <> $from
		CREATE (s)-[r2:MENTIONED]->(to)
		SET r2 = properties(r)
		DELETE r
		RETURN count(r2) AS n
	`, map[string]any{"from": fromID, "to": toID})
}

func (t *cypherTx) DeleteIncoming(ctx context.Context, id string) (int, error) {
	return t.count(ctx, "delete incoming", `
		MATCH (s:Node)-[r:MENTIONED]->(x:Node {uid: $uid})
		WHERE s.uid <> $uid
		DELETE r
		RETURN count(*) AS n
	`, map[string]any{"uid": id})
}

func (t *cypherTx) Incoming(ctx context.Context, id string) ([]models.Edge, error) {
	return t.edges(ctx, "incoming",
		`MATCH (s:Node)-[r:MENTIONED]->(t:Node {uid: $uid}) `+edgeReturn, map[string]any{"uid": id})
}

func (t *cypherTx) Outgoing(ctx context.Context, id string) ([]models.Edge, error) {
	return t.edges(ctx, "outgoing",
		`MATCH (s:Node {uid: $uid})-[r:MENTIONED]->(t:Node) `+edgeReturn, map[string]any{"uid": id})
}

func (t *cypherTx) Nodes(ctx context.Context) ([]models.Node, error) {
	return t.nodes(ctx, "nodes", `MATCH (n:Node) RETURN n ORDER BY n:Placeholder, n.name_key, n.path`, nil)
}

func (t *cypherTx) Edges(ctx context.Context) ([]models.Edge, error) {
	return t.edges(ctx, "edges", `MATCH (s:Node)-[r:MENTIONED]->(t:Node) `+edgeReturn, nil)
}

func (t *cypherTx) Placeholders(ctx context.Context) ([]models.Node, error) {
	return t.nodes(ctx, "placeholders", `MATCH (n:Placeholder) RETURN n ORDER BY n.name_key`, nil)
}

func (t *cypherTx) Documents(ctx context.Context) ([]models.DocumentSummary, error) {
	records, err := t.collect(ctx, "documents",
		`MATCH (n:Document) RETURN n.uid AS uid, n.path AS path, n.checksum AS checksum ORDER BY n.path`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]models.DocumentSummary, 0, len(records))
	for _, r := range records {
		out = append(out, models.DocumentSummary{
			ID:       getStringFromRecord(r, "uid"),
			Path:     getStringFromRecord(r, "path"),
			Checksum: getStringFromRecord(r, "checksum"),
		})
	}
	return out, nil
}

// Chunks returns the document's chunks in chain order, starting at the head.
func (t *cypherTx) Chunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	if _, err := t.Node(ctx, documentID); err != nil {
		return nil, err
	}
	records, err := t.collect(ctx, "chunks", `
		MATCH (d:Node {uid: $uid})-[:CONTAINS]->(c:Chunk)
		OPTIONAL MATCH (c)-[:NEXT_CHUNK]->(nx:Chunk)
		RETURN c.uid AS uid, c.ordinal AS ordinal, c.name AS name, c.content AS content,
		       c.embedding AS embedding, nx.uid AS next, EXISTS { (d)-[:HEAD_CHUNK]->(c) } AS head
	`, map[string]any{"uid": documentID})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Chunk, len(records))
	var head string
	for _, r := range records {
		emb, _ := r.Get("embedding")
		c := models.Chunk{
			ID:        getStringFromRecord(r, "uid"),
			Ordinal:   getIntFromRecord(r, "ordinal"),
			Name:      getStringFromRecord(r, "name"),
			Content:   getStringFromRecord(r, "content"),
			Embedding: float32Slice(emb),
			NextID:    getStringFromRecord(r, "next"),
		}
		byID[c.ID] = c
		if getBoolFromRecord(r, "head") {
			head = c.ID
		}
	}

	out := make([]models.Chunk, 0, len(byID))
	for id := head; id != "" && len(out) < len(byID); {
		c, ok := byID[id]
		if !ok {
			break
		}
		out = append(out, c)
		id = c.NextID
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
