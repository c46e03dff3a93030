package controllers

import (
	"github.com/datallboy/nzbstream/internal/nzb"
	"github.com/datallboy/nzbstream/internal/store"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type NZBListResponse struct {
	Items []*store.Record `json:"items"`
	Total int             `json:"total"`
}

type NZBDetailResponse struct {
	*store.Record
	Files []nzb.FileInfo `json:"files"`
}
