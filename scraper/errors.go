package scraper

import (
	"errors"
	"io/fs"
	"os"

	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

// OutcomeKind tags the terminal state reached for one identifier.
type OutcomeKind int

const (
	OutcomeSaved OutcomeKind = iota
	OutcomeAbsent
	OutcomeHTTPStatus
	OutcomeNetwork
	OutcomeParse
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSaved:
		return "saved"
	case OutcomeAbsent:
		return "absent"
	case OutcomeHTTPStatus:
		return "http_status"
	case OutcomeNetwork:
		return "network"
	case OutcomeParse:
		return "parse"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func outcomeKind(err error) OutcomeKind {
	var redirect *fetch.RedirectError
	if errors.As(err, &redirect) {
		return OutcomeAbsent
	}
	var network *fetch.NetworkError
	if errors.As(err, &network) {
		return OutcomeNetwork
	}
	var status *fetch.StatusError
	if errors.As(err, &status) {
		return OutcomeHTTPStatus
	}
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return OutcomeParse
	}
	return OutcomeFailed
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var redirect *fetch.RedirectError
	if errors.As(err, &redirect) {
		return "redirect"
	}
	var network *fetch.NetworkError
	if errors.As(err, &network) {
		if network.Timeout() {
			return "timeout"
		}
		return "connection"
	}
	var status *fetch.StatusError
	if errors.As(err, &status) {
		return "http_status"
	}
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return "filesystem"
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return "filesystem"
	}
	return "other"
}
