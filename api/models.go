// Package api exposes the query service over HTTP/JSON.
package api

import "github.com/hupe1980/urldex/query"

// DatasetInfo is one dataset entry of a domain response.
type DatasetInfo struct {
	DatasetID   uint32 `json:"dataset_id"`
	URLCountEst *int64 `json:"url_count_est"`
}

// DomainResponse answers GET /v1/domain/{domain}.
type DomainResponse struct {
	Domain   string        `json:"domain"`
	DomainID *uint64       `json:"domain_id"`
	Datasets []DatasetInfo `json:"datasets"`
}

// URLItem is one URL row of a page.
type URLItem struct {
	URLID int64   `json:"url_id"`
	URL   string  `json:"url"`
	TS    *string `json:"ts"`
}

// URLsResponse answers GET /v1/domain/{domain}/datasets/{dataset_id}/urls.
type URLsResponse struct {
	Domain     string    `json:"domain"`
	DatasetID  uint32    `json:"dataset_id"`
	TotalEst   *int64    `json:"total_est"`
	Items      []URLItem `json:"items"`
	NextOffset *uint64   `json:"next_offset"`
}

// ErrorResponse is the body of non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toDomainResponse(r query.DomainResult) DomainResponse {
	resp := DomainResponse{
		Domain:   r.Domain,
		Datasets: make([]DatasetInfo, 0, len(r.Datasets)),
	}
	if r.Found {
		id := uint64(r.DomainID)
		resp.DomainID = &id
	}
	for _, d := range r.Datasets {
		resp.Datasets = append(resp.Datasets, DatasetInfo{
			DatasetID:   uint32(d.DatasetID),
			URLCountEst: d.URLCountEst,
		})
	}
	return resp
}

func toURLsResponse(r query.URLsResult) URLsResponse {
	resp := URLsResponse{
		Domain:     r.Domain,
		DatasetID:  uint32(r.DatasetID),
		TotalEst:   r.TotalEst,
		Items:      make([]URLItem, 0, len(r.Items)),
		NextOffset: r.NextOffset,
	}
	for _, item := range r.Items {
		resp.Items = append(resp.Items, URLItem{URLID: item.URLID, URL: item.URL})
	}
	return resp
}
