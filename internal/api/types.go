package api

import (
	"erpsync/internal/domain"
	"erpsync/internal/typemap"
)

// ColumnInfo is a source column with its destination mapping.
type ColumnInfo struct {
	Name            string `json:"name"`
	SourceType      string `json:"source_type"`
	DestinationType string `json:"destination_type,omitempty"`
	Unsupported     bool   `json:"unsupported,omitempty"`
	MaxLength       int    `json:"max_length,omitempty"`
	Nullable        bool   `json:"nullable"`
	PrimaryKey      bool   `json:"primary_key,omitempty"`
}

// TableInfo is a source table as listed by the console.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// SyncRequest selects tables for a selective sync. An empty list falls back
// to the configured sync allow-list.
type SyncRequest struct {
	Tables []string `json:"tables"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Summary *domain.RunSummary `json:"summary,omitempty"`
}

// TablesToAPI converts catalog descriptors to their listing form.
func TablesToAPI(tables []domain.TableDescriptor) []TableInfo {
	out := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableToAPI(t))
	}
	return out
}

func tableToAPI(d domain.TableDescriptor) TableInfo {
	cols := make([]ColumnInfo, 0, len(d.Columns))
	for _, c := range d.Columns {
		info := ColumnInfo{
			Name:       c.Name,
			SourceType: c.SourceType,
			MaxLength:  c.MaxLength,
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
		}
		if typ, err := typemap.DestinationType(c); err == nil {
			info.DestinationType = typ
		} else {
			info.Unsupported = true
		}
		cols = append(cols, info)
	}
	return TableInfo{Name: d.TableName, Columns: cols}
}
