package lexical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitIdentifier_CamelAndSnakeCase(t *testing.T) {
	require.Equal(t, []string{"get", "User", "Name"}, splitIdentifier("getUserName"))
	require.Equal(t, []string{"http", "client"}, splitIdentifier("http_client"))
	require.Equal(t, []string{"HTTP", "Server"}, splitIdentifier("HTTPServer"))
	require.Equal(t, []string{"parse", "Count"}, splitIdentifier("parseCount"))
}

func TestTokenize_LowercasesAndSplitsSubtokens(t *testing.T) {
	az := newAnalyzer()
	terms := tokenize(az, "func NewHTTPClient(timeout_ms int)")
	require.Contains(t, terms, "newhttpclient")
	require.Contains(t, terms, "http")
	require.Contains(t, terms, "client")
	require.Contains(t, terms, "timeout_ms")
	require.Contains(t, terms, "timeout")
	require.Contains(t, terms, "ms")
}

func TestIndex_SearchFindsExactAndSubtokenMatches(t *testing.T) {
	idx := New()
	idx.AddChunk("a", "func NewHTTPClient() *HTTPClient { return &HTTPClient{} }")
	idx.AddChunk("b", "func ParseConfig(path string) (*Config, error)")

	results := idx.Search("http client", 5)
	require.NotEmpty(t, results)
	require.Equal(t, "a", results[0].ChunkID)
}

func TestIndex_SearchRanksRarerTermsHigher(t *testing.T) {
	idx := New()
	idx.AddChunk("common", "config config config parse parse parse")
	idx.AddChunk("rare", "config zzzzrare")

	results := idx.Search("zzzzrare", 5)
	require.Len(t, results, 1)
	require.Equal(t, "rare", results[0].ChunkID)
}

func TestIndex_RemoveDeletesFromPostings(t *testing.T) {
	idx := New()
	idx.AddChunk("a", "unique_marker_token")
	require.Equal(t, 1, idx.Len())

	idx.Remove("a")
	require.Equal(t, 0, idx.Len())

	results := idx.Search("unique_marker_token", 5)
	require.Empty(t, results)
}

func TestIndex_ReindexingSameChunkReplacesOldTerms(t *testing.T) {
	idx := New()
	idx.AddChunk("a", "alpha")
	idx.AddChunk("a", "beta")

	require.Empty(t, idx.Search("alpha", 5))
	results := idx.Search("beta", 5)
	require.Len(t, results, 1)
}

func TestIndex_SearchRespectsLimit(t *testing.T) {
	idx := New()
	for _, id := range []string{"a", "b", "c"} {
		idx.AddChunk(id, "shared term across all docs")
	}
	results := idx.Search("shared", 2)
	require.Len(t, results, 2)
}

func TestIndex_EmptyIndexSearchReturnsNoResults(t *testing.T) {
	idx := New()
	require.Empty(t, idx.Search("anything", 5))
}
