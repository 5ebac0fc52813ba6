package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/processing"
)

// DocumentConverter is the conversion and OCR sidecar.
type DocumentConverter interface {
	Convert(ctx context.Context, target string, file processing.NamedFile) ([]byte, string, error)
	OCR(ctx context.Context, file processing.NamedFile, language string) (*processing.OCRResult, error)
}

// ToolJobs builds the jobs behind each tool endpoint.
type ToolJobs struct {
	pdf       *processing.PDF
	converter DocumentConverter
}

func NewToolJobs(pdf *processing.PDF, converter DocumentConverter) *ToolJobs {
	return &ToolJobs{pdf: pdf, converter: converter}
}

func (tj *ToolJobs) Compress(file processing.NamedFile) Job {
	return Job{
		Tool:   models.ToolOptimize,
		Action: "compress",
		Inputs: []processing.NamedFile{file},
		Process: func(_ context.Context, in []processing.NamedFile) (*Output, error) {
			data, err := tj.pdf.Compress(in[0].Data)
			if err != nil {
				return nil, err
			}
			return pdfOutput(in[0].Name, "compressed", data), nil
		},
	}
}

func (tj *ToolJobs) Organize(action string, files []processing.NamedFile, params map[string]string) (Job, error) {
	job := Job{Tool: models.ToolOrganize, Action: action, Inputs: files, Params: params}
	pages := processing.ParsePages(params["pages"])

	switch action {
	case "merge":
		if len(files) < 2 {
			return Job{}, apperrors.BadRequest("tools", "Merging needs at least two PDF files")
		}
		job.Process = func(_ context.Context, in []processing.NamedFile) (*Output, error) {
			docs := make([][]byte, len(in))
			for i, f := range in {
				docs[i] = f.Data
			}
			data, err := tj.pdf.Merge(docs)
			if err != nil {
				return nil, err
			}
			return &Output{Name: "merged.pdf", Data: data, MimeType: processing.MimePDF}, nil
		}

	case "rotate":
		degrees, err := strconv.Atoi(strings.TrimSpace(params["degrees"]))
		if err != nil || degrees == 0 || degrees%90 != 0 {
			return Job{}, apperrors.BadRequest("tools", "degrees must be a multiple of 90")
		}
		job.Process = tj.single("rotated", func(data []byte) ([]byte, error) {
			return tj.pdf.Rotate(data, degrees, pages)
		})

	case "remove-pages", "extract-pages":
		if len(pages) == 0 {
			return Job{}, apperrors.BadRequest("tools", "pages is required, e.g. 1-3,5")
		}
		if action == "remove-pages" {
			job.Process = tj.single("pages-removed", func(data []byte) ([]byte, error) {
				return tj.pdf.RemovePages(data, pages)
			})
		} else {
			job.Process = tj.single("extracted", func(data []byte) ([]byte, error) {
				return tj.pdf.ExtractPages(data, pages)
			})
		}

	default:
		return Job{}, apperrors.BadRequest("tools", fmt.Sprintf("unknown organize action %q", action))
	}

	if action != "merge" && len(files) != 1 {
		return Job{}, apperrors.BadRequest("tools", "Exactly one PDF file is required")
	}
	return job, nil
}

func (tj *ToolJobs) Security(action string, file processing.NamedFile, params map[string]string) (Job, error) {
	password := params["password"]
	if password == "" {
		return Job{}, apperrors.BadRequest("tools", "password is required")
	}

	job := Job{Tool: models.ToolSecurity, Action: action, Inputs: []processing.NamedFile{file}, Params: params}
	switch action {
	case "encrypt":
		job.Process = tj.single("protected", func(data []byte) ([]byte, error) {
			return tj.pdf.Encrypt(data, password, params["owner_password"])
		})
	case "decrypt":
		job.Process = tj.single("unlocked", func(data []byte) ([]byte, error) {
			return tj.pdf.Decrypt(data, password)
		})
	default:
		return Job{}, apperrors.BadRequest("tools", fmt.Sprintf("unknown security action %q", action))
	}
	return job, nil
}

func (tj *ToolJobs) Convert(target string, file processing.NamedFile) (Job, error) {
	t, ok := processing.LookupConvertTarget(target)
	if !ok {
		return Job{}, apperrors.BadRequest("tools", fmt.Sprintf("unsupported conversion target %q", target))
	}
	target = strings.ToLower(target)

	return Job{
		Tool:   models.ToolConvert,
		Action: "to-" + target,
		Inputs: []processing.NamedFile{file},
		Params: map[string]string{"target": target},
		Process: func(ctx context.Context, in []processing.NamedFile) (*Output, error) {
			data, name, err := tj.converter.Convert(ctx, target, in[0])
			if err != nil {
				return nil, sidecarError(err, "converter")
			}
			if name == "" {
				name = baseName(in[0].Name) + t.Extension
			}
			return &Output{Name: processing.SanitizeFilename(name), Data: data, MimeType: t.MimeType}, nil
		},
	}, nil
}

// OCR recognizes text in a scanned document. It is metered as a conversion
// and requires the OCR plan feature.
func (tj *ToolJobs) OCR(file processing.NamedFile, language string) Job {
	if language == "" {
		language = "eng"
	}
	return Job{
		Tool:    models.ToolOCR,
		Action:  "recognize",
		Inputs:  []processing.NamedFile{file},
		Params:  map[string]string{"language": language},
		Feature: models.FeatureOCR,
		Process: func(ctx context.Context, in []processing.NamedFile) (*Output, error) {
			res, err := tj.converter.OCR(ctx, in[0], language)
			if err != nil {
				return nil, sidecarError(err, "ocr")
			}
			return &Output{
				Name:     baseName(in[0].Name) + ".txt",
				Data:     []byte(res.Text),
				MimeType: "text/plain; charset=utf-8",
				Extra: map[string]interface{}{
					"text":       res.Text,
					"confidence": res.Confidence,
				},
			}, nil
		},
	}
}

// Rename packs the files into a ZIP with names generated from pattern.
func (tj *ToolJobs) Rename(files []processing.NamedFile, pattern string) Job {
	return Job{
		Tool:   models.ToolEdit,
		Action: "rename",
		Inputs: files,
		Params: map[string]string{"pattern": pattern},
		Batch:  true,
		Process: func(_ context.Context, in []processing.NamedFile) (*Output, error) {
			data, err := processing.RenameToZip(in, pattern)
			if err != nil {
				return nil, err
			}
			return &Output{Name: "renamed-files.zip", Data: data, MimeType: processing.MimeZip}, nil
		},
	}
}

// Automation runs an ordered pipeline of optimize, organize and security
// steps as one advanced operation.
func (tj *ToolJobs) Automation(file processing.NamedFile, steps []models.AutomationStep) (Job, error) {
	if len(steps) == 0 {
		return Job{}, apperrors.BadRequest("tools", "At least one step is required")
	}
	actions := make([]string, len(steps))
	for i, s := range steps {
		actions[i] = s.Action
	}
	return Job{
		Tool:   models.ToolAdvanced,
		Action: "automation",
		Inputs: []processing.NamedFile{file},
		Params: map[string]string{"steps": strings.Join(actions, ",")},
		Process: tj.single("processed", func(data []byte) ([]byte, error) {
			return tj.pdf.RunPipeline(data, steps)
		}),
	}, nil
}

// Export applies an edit session's pending edits to its source document.
func (tj *ToolJobs) Export(source processing.NamedFile, edits models.EditSet) Job {
	return Job{
		Tool:   models.ToolEdit,
		Action: "export",
		Inputs: []processing.NamedFile{source},
		Process: tj.single("edited", func(data []byte) ([]byte, error) {
			return tj.pdf.ApplyEdits(data, edits)
		}),
	}
}

func (tj *ToolJobs) single(suffix string, fn func([]byte) ([]byte, error)) func(context.Context, []processing.NamedFile) (*Output, error) {
	return func(_ context.Context, in []processing.NamedFile) (*Output, error) {
		data, err := fn(in[0].Data)
		if err != nil {
			return nil, err
		}
		return pdfOutput(in[0].Name, suffix, data), nil
	}
}

func pdfOutput(inputName, suffix string, data []byte) *Output {
	return &Output{
		Name:     fmt.Sprintf("%s-%s.pdf", baseName(inputName), suffix),
		Data:     data,
		MimeType: processing.MimePDF,
	}
}

func baseName(name string) string {
	name = processing.SanitizeFilename(name)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func sidecarError(err error, service string) error {
	if errors.Is(err, processing.ErrSidecarUnavailable) {
		return apperrors.ExternalService(err, service)
	}
	return err
}
