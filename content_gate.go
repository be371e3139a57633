package prbook

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	serrors "github.com/Hwndy/PR-BOOK/errors"
)

// Content is an open handle on the protected file. The caller owns the handle
// and must close it after streaming.
type Content struct {
	File        *os.File
	Name        string
	ContentType string
	Size        int64
}

// ContentGate serves the protected book bytes, and only the bytes, after the
// validator approves. It never re-derives or overrides the validator's
// verdict, and it never exposes a path to the raw asset.
type ContentGate struct {
	validator *Validator
	path      string
	filename  string
}

func NewContentGate(validator *Validator, path, filename string) *ContentGate {
	return &ContentGate{validator: validator, path: path, filename: filename}
}

// Open validates access and opens the underlying file. A missing file is a
// deployment problem, reported as CONTENT_NOT_FOUND, deliberately distinct
// from every token-side denial.
func (g *ContentGate) Open(ctx context.Context, token string, rc RequestContext) (*Content, *Grant, error) {
	grant, err := g.validator.Validate(ctx, token, rc)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("path", g.path).Msg("E-book file missing from deployment")
			return nil, nil, serrors.NewContentNotFound()
		}
		return nil, nil, fmt.Errorf("opening e-book file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat e-book file: %w", err)
	}

	return &Content{
		File:        f,
		Name:        g.filename,
		ContentType: "application/pdf",
		Size:        info.Size(),
	}, grant, nil
}
