package neo4jstore

import (
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/notegraph/internal/models"
)

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getFloat64FromRecord(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0.0
	}
	if f, ok := val.(float64); ok {
		return f
	}
	if i, ok := val.(int64); ok {
		return float64(i)
	}
	return 0.0
}

func getBoolFromRecord(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func stringSlice(val any) []string {
	slice, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, _ := record.Get(key)
	return stringSlice(val)
}

func float32Slice(val any) []float32 {
	slice, ok := val.([]any)
	if !ok || len(slice) == 0 {
		return nil
	}
	out := make([]float32, 0, len(slice))
	for _, v := range slice {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

// toFloat64s converts an embedding to the list type Neo4j stores.
func toFloat64s(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func nodeFromGraph(n neo4j.Node) models.Node {
	props := n.Props
	node := models.Node{
		Kind: models.KindPlaceholder,
		Tags: stringSlice(props["tags"]),
	}
	for _, l := range n.Labels {
		if l == "Document" {
			node.Kind = models.KindDocument
		}
	}
	node.ID, _ = props["uid"].(string)
	node.Name, _ = props["name"].(string)
	node.Path, _ = props["path"].(string)
	node.Title, _ = props["title"].(string)
	node.Checksum, _ = props["checksum"].(string)
	if t, ok := props["modified_at"].(time.Time); ok {
		node.ModifiedAt = t
	}
	return node
}

func encodeProperties(props map[string]any) string {
	if props == nil {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeProperties(s string) map[string]any {
	if s == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
