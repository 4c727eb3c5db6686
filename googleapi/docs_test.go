package googleapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraphJSON(text string, bullet bool) map[string]any {
	p := map[string]any{
		"elements": []any{
			map[string]any{"textRun": map[string]any{"content": text}},
		},
	}
	if bullet {
		p["bullet"] = map[string]any{}
	}
	return map[string]any{"paragraph": p}
}

func cellJSON(text string) map[string]any {
	return map[string]any{"content": []any{paragraphJSON(text, false)}}
}

func personsCellJSON(names ...string) map[string]any {
	content := make([]any, 0, len(names))
	for _, name := range names {
		content = append(content, paragraphJSON(name, true))
	}
	return map[string]any{"content": content}
}

// protocolTableJSON builds a table block in the fixed six-row protocol
// layout the parser expects.
func protocolTableJSON(status, number, date string, persons ...string) map[string]any {
	rows := []any{
		map[string]any{"tableCells": []any{cellJSON(status)}},
		map[string]any{"tableCells": []any{cellJSON("")}},
		map[string]any{"tableCells": []any{cellJSON("Номер"), cellJSON(number)}},
		map[string]any{"tableCells": []any{cellJSON("Дата"), cellJSON(date)}},
		map[string]any{"tableCells": []any{cellJSON("")}},
		map[string]any{"tableCells": []any{cellJSON("Присутствовали"), personsCellJSON(persons...)}},
	}
	return map[string]any{"table": map[string]any{"tableRows": rows}}
}

func documentJSON(t *testing.T, blocks ...map[string]any) []byte {
	t.Helper()
	content := make([]any, 0, len(blocks)+1)
	content = append(content, map[string]any{"paragraph": map[string]any{}})
	for _, block := range blocks {
		content = append(content, block)
	}
	body, err := json.Marshal(map[string]any{"body": map[string]any{"content": content}})
	require.NoError(t, err)
	return body
}

func TestParseProtocolDocument_ValidProtocol(t *testing.T) {
	body := documentJSON(t,
		protocolTableJSON("Проверено", "5", "12.03.2024", "корнилов женя", "Лебедева Юля"),
	)

	records, err := parseProtocolDocument(body)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.True(t, record.Status)
	assert.Equal(t, 5, record.Number)
	require.NotNil(t, record.Date)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), *record.Date)
	assert.Equal(t, []string{"Корнилов Женя", "Лебедева Юля"}, record.Persons)
	assert.True(t, record.Valid())
}

func TestParseProtocolDocument_DegradedFields(t *testing.T) {
	body := documentJSON(t,
		// Unchecked protocol keeps only its number.
		protocolTableJSON("черновик", "7", "12.03.2024", "Корнилов Женя"),
		// Bad date and non-numeric number degrade to zero values.
		protocolTableJSON("ПРОВЕРЕНО", "восемь", "2024-03-12", "Корнилов Женя"),
		// Names that are not two Cyrillic words are dropped from the list.
		protocolTableJSON("проверено", "9", "01.04.2024", "Женя", "Zhenya Kornilov", "Немеш Иван"),
	)

	records, err := parseProtocolDocument(body)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.False(t, records[0].Status)
	assert.Equal(t, 7, records[0].Number)
	assert.Nil(t, records[0].Date)
	assert.Empty(t, records[0].Persons)
	assert.False(t, records[0].Valid())

	assert.True(t, records[1].Status)
	assert.Equal(t, 0, records[1].Number)
	assert.Nil(t, records[1].Date)
	assert.False(t, records[1].Valid())

	assert.Equal(t, []string{"Немеш Иван"}, records[2].Persons)
	assert.True(t, records[2].Valid())
}

func TestParseProtocolDocument_SkipsNonTableBlocks(t *testing.T) {
	records, err := parseProtocolDocument(documentJSON(t))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchProtocols_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status  int
		sentinel error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusForbidden, ErrPermissionDenied},
	}

	for _, test := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(test.status)
		}))

		client := NewClient("token")
		client.DocsBaseURL = server.URL

		_, err := client.FetchProtocols(context.Background(), "doc-id")
		assert.ErrorIs(t, err, test.sentinel)
		server.Close()
	}
}

func TestFetchProtocols_GenericAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("token")
	client.DocsBaseURL = server.URL

	_, err := client.FetchProtocols(context.Background(), "doc-id")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}
