package dest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/roach88/mongo2elastic/internal/document"
)

// ElasticConfig holds connection settings for Elasticsearch.
type ElasticConfig struct {
	User     string
	Password string
	Host     string // host name or full URL; default "localhost"
	Port     string // default "9200"

	// Refresh is passed as the refresh parameter of write requests
	// ("", "true", "false" or "wait_for").
	Refresh string
}

// Address returns the base URL without credentials.
func (c ElasticConfig) Address() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "9200"
	}
	if strings.Contains(host, "://") {
		if strings.Count(host, ":") > 1 {
			return host
		}
		return host + ":" + port
	}
	return "http://" + host + ":" + port
}

// Elastic is a Destination backed by an Elasticsearch cluster.
type Elastic struct {
	client  *elasticsearch.Client
	refresh string
}

// NewElastic creates a client for cfg. Credentials are only sent when both
// user and password are set.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	esCfg := elasticsearch.Config{Addresses: []string{cfg.Address()}}
	if cfg.User != "" && cfg.Password != "" {
		esCfg.Username = cfg.User
		esCfg.Password = cfg.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Elastic{client: client, refresh: cfg.Refresh}, nil
}

// Search returns the first hit of (index, typ) sorted by sort. A missing
// index is reported as no hit.
func (e *Elastic) Search(ctx context.Context, index, typ string, sort []SortField) (*Hit, error) {
	sortSpec := make([]map[string]any, 0, len(sort))
	for _, s := range sort {
		order := "asc"
		if s.Desc {
			order = "desc"
		}
		spec := map[string]string{"order": order}
		if s.UnmappedType != "" {
			spec["unmapped_type"] = s.UnmappedType
		}
		sortSpec = append(sortSpec, map[string]any{s.Field: spec})
	}
	body, err := json.Marshal(map[string]any{"size": 1, "sort": sortSpec})
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	req := esapi.SearchRequest{
		Index:        []string{index},
		DocumentType: []string{typ},
		Body:         bytes.NewReader(body),
	}
	var out struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := e.do(ctx, "search "+index+"/"+typ, req, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(out.Hits.Hits) == 0 {
		return nil, nil
	}
	h := out.Hits.Hits[0]
	return &Hit{ID: h.ID, Source: h.Source}, nil
}

// Get returns the _source of a document.
func (e *Elastic) Get(ctx context.Context, index, typ, id string) (map[string]any, error) {
	req := esapi.GetRequest{Index: index, DocumentType: typ, DocumentID: id}
	var out struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if err := e.do(ctx, "get "+index+"/"+typ+"/"+id, req, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, ErrNotFound
	}
	return out.Source, nil
}

// Index creates or replaces a document.
func (e *Elastic) Index(ctx context.Context, index, typ, id string, doc *document.Document) error {
	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	req := esapi.IndexRequest{
		Index:        index,
		DocumentType: typ,
		DocumentID:   id,
		Body:         bytes.NewReader(body),
		Refresh:      e.refresh,
	}
	return e.do(ctx, "index "+index+"/"+typ+"/"+id, req, nil)
}

// Update merges doc into an existing document. The cluster answers
// "noop" when the merge leaves the stored source unchanged.
func (e *Elastic) Update(ctx context.Context, index, typ, id string, doc *document.Document) (bool, error) {
	docJSON, err := doc.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", id, err)
	}
	var body bytes.Buffer
	body.WriteString(`{"doc":`)
	body.Write(docJSON)
	body.WriteString(`}`)

	req := esapi.UpdateRequest{
		Index:        index,
		DocumentType: typ,
		DocumentID:   id,
		Body:         &body,
		Refresh:      e.refresh,
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := e.do(ctx, "update "+index+"/"+typ+"/"+id, req, &out); err != nil {
		return false, err
	}
	return out.Result == "updated", nil
}

// do performs req and decodes a successful body into out (when non-nil).
func (e *Elastic) do(ctx context.Context, op string, req esapi.Request, out any) error {
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, res.Body)
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if res.IsError() {
		return &TransportError{Op: op, Status: res.StatusCode, Reason: errorReason(res.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Status: res.StatusCode, Reason: "decode response", Err: err}
	}
	return nil
}

func errorReason(body io.Reader) string {
	var out struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &out) == nil && out.Error.Type != "" {
		return out.Error.Type + ": " + out.Error.Reason
	}
	return strings.TrimSpace(string(raw))
}
