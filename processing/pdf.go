package processing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdfdesk/models"
)

const MimePDF = "application/pdf"

var disableConfigDir sync.Once

// PDF runs in-process document transformations. All methods take and return
// whole documents held in memory; upload size limits bound them.
type PDF struct{}

func NewPDF() *PDF {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDF{}
}

func (p *PDF) conf() *model.Configuration {
	return model.NewDefaultConfiguration()
}

func (p *PDF) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), p.conf())
	if err != nil {
		return 0, fmt.Errorf("reading page count: %w", err)
	}
	return n, nil
}

// Compress rewrites the document without duplicate and unused objects.
func (p *PDF) Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, p.conf()); err != nil {
		return nil, fmt.Errorf("optimizing: %w", err)
	}
	return out.Bytes(), nil
}

func (p *PDF) Merge(files [][]byte) ([]byte, error) {
	if len(files) < 2 {
		return nil, errors.New("merge needs at least two documents")
	}
	readers := make([]io.ReadSeeker, 0, len(files))
	for _, f := range files {
		readers = append(readers, bytes.NewReader(f))
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, p.conf()); err != nil {
		return nil, fmt.Errorf("merging: %w", err)
	}
	return out.Bytes(), nil
}

// Rotate turns the selected pages, or every page when pages is empty.
func (p *PDF) Rotate(data []byte, degrees int, pages []string) ([]byte, error) {
	if degrees%90 != 0 || degrees == 0 {
		return nil, fmt.Errorf("rotation must be a non-zero multiple of 90, got %d", degrees)
	}
	var out bytes.Buffer
	if err := api.Rotate(bytes.NewReader(data), &out, degrees, pages, p.conf()); err != nil {
		return nil, fmt.Errorf("rotating: %w", err)
	}
	return out.Bytes(), nil
}

func (p *PDF) RemovePages(data []byte, pages []string) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New("no pages selected")
	}
	var out bytes.Buffer
	if err := api.RemovePages(bytes.NewReader(data), &out, pages, p.conf()); err != nil {
		return nil, fmt.Errorf("removing pages: %w", err)
	}
	return out.Bytes(), nil
}

// ExtractPages keeps only the selected pages.
func (p *PDF) ExtractPages(data []byte, pages []string) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New("no pages selected")
	}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, pages, p.conf()); err != nil {
		return nil, fmt.Errorf("extracting pages: %w", err)
	}
	return out.Bytes(), nil
}

// Encrypt applies AES-256 with the given passwords. An empty owner password
// falls back to the user password.
func (p *PDF) Encrypt(data []byte, userPW, ownerPW string) ([]byte, error) {
	if userPW == "" {
		return nil, errors.New("password is required")
	}
	if ownerPW == "" {
		ownerPW = userPW
	}
	var out bytes.Buffer
	conf := model.NewAESConfiguration(userPW, ownerPW, 256)
	if err := api.Encrypt(bytes.NewReader(data), &out, conf); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return out.Bytes(), nil
}

func (p *PDF) Decrypt(data []byte, password string) ([]byte, error) {
	conf := p.conf()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return out.Bytes(), nil
}

// SetProperties writes document info entries such as Title and Author.
func (p *PDF) SetProperties(data []byte, props map[string]string) ([]byte, error) {
	if len(props) == 0 {
		return data, nil
	}
	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(data), &out, props, p.conf()); err != nil {
		return nil, fmt.Errorf("setting properties: %w", err)
	}
	return out.Bytes(), nil
}

// ApplyEdits applies an edit session's pending edits. Page numbers refer to
// the source document, so removals run last.
func (p *PDF) ApplyEdits(data []byte, edits models.EditSet) ([]byte, error) {
	byDegrees := map[int][]string{}
	for page, deg := range edits.Rotations {
		byDegrees[deg] = append(byDegrees[deg], page)
	}
	degrees := make([]int, 0, len(byDegrees))
	for deg := range byDegrees {
		degrees = append(degrees, deg)
	}
	sort.Ints(degrees)

	var err error
	for _, deg := range degrees {
		pages := byDegrees[deg]
		sort.Strings(pages)
		if data, err = p.Rotate(data, deg, pages); err != nil {
			return nil, err
		}
	}

	if data, err = p.SetProperties(data, edits.Properties); err != nil {
		return nil, err
	}

	if len(edits.RemovePages) > 0 {
		pages := make([]string, 0, len(edits.RemovePages))
		for _, n := range edits.RemovePages {
			pages = append(pages, strconv.Itoa(n))
		}
		if data, err = p.RemovePages(data, pages); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// RunPipeline applies automation steps in order, feeding each output into
// the next step.
func (p *PDF) RunPipeline(data []byte, steps []models.AutomationStep) ([]byte, error) {
	var err error
	for i, step := range steps {
		data, err = p.runStep(data, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return data, nil
}

func (p *PDF) runStep(data []byte, step models.AutomationStep) ([]byte, error) {
	params := step.Params
	switch step.Action {
	case "compress":
		return p.Compress(data)
	case "rotate":
		deg, err := strconv.Atoi(strings.TrimSpace(params["degrees"]))
		if err != nil {
			return nil, fmt.Errorf("invalid degrees %q", params["degrees"])
		}
		return p.Rotate(data, deg, ParsePages(params["pages"]))
	case "remove-pages":
		return p.RemovePages(data, ParsePages(params["pages"]))
	case "extract-pages":
		return p.ExtractPages(data, ParsePages(params["pages"]))
	case "encrypt":
		return p.Encrypt(data, params["password"], params["owner_password"])
	case "decrypt":
		return p.Decrypt(data, params["password"])
	case "properties":
		return p.SetProperties(data, DocumentProperties(params))
	}
	return nil, fmt.Errorf("unknown action %q", step.Action)
}

// ParsePages splits a selection such as "1-3, 5" into pdfcpu page selectors.
func ParsePages(s string) []string {
	var pages []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			pages = append(pages, part)
		}
	}
	return pages
}

var documentPropertyKeys = []string{"Title", "Author", "Subject", "Keywords", "Creator"}

// DocumentProperties keeps only the info keys users may set.
func DocumentProperties(params map[string]string) map[string]string {
	props := map[string]string{}
	for _, key := range documentPropertyKeys {
		if v := strings.TrimSpace(params[key]); v != "" {
			props[key] = v
			continue
		}
		if v := strings.TrimSpace(params[strings.ToLower(key)]); v != "" {
			props[key] = v
		}
	}
	return props
}
