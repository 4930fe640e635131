package knowledge

import (
	"bufio"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElasticQuery(t *testing.T) {
	assert.Contains(t, elasticQuery(Filter{}), "match_all")

	q := elasticQuery(Filter{ClassroomID: 7, Filename: "a.pdf"})
	raw, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"bool":{"filter":[{"term":{"classroom_id":7}},{"term":{"filename":"a.pdf"}}]}}`,
		string(raw))
}

func TestElasticMapping_UsesCosineDenseVector(t *testing.T) {
	m := elasticMapping(384)
	props := m["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	vec := props["vector"].(map[string]interface{})
	assert.Equal(t, "dense_vector", vec["type"])
	assert.Equal(t, 384, vec["dims"])
	assert.Equal(t, "cosine", vec["similarity"])
}

func TestElasticIndex_BulkBody(t *testing.T) {
	idx := &ElasticIndex{index: "classroom_docs", dims: 3}
	entries, _, err := prepareEntries([]IndexEntry{
		entry(7, 1, 0, "first", 1, 0, 0),
		entry(7, 1, 1, "second", 0, 1, 0),
	}, 3)
	require.NoError(t, err)

	buf, err := idx.bulkBody(entries, 100)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 4)

	var action map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
	assert.Equal(t, "classroom_docs", action["index"]["_index"])
	assert.Equal(t, entries[0].ID, action["index"]["_id"])

	var doc elasticDoc
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &doc))
	assert.Equal(t, int64(101), doc.Seq)
	assert.Equal(t, "second", doc.Content)
	assert.Equal(t, uint(7), doc.ClassroomID)
}

func TestNewElasticIndex_RequiresAddresses(t *testing.T) {
	_, err := NewElasticIndex(ElasticOptions{Dimensions: 3})
	assert.Error(t, err)
}
