package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"stroycrm/pkg/config"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const visionScope = "https://www.googleapis.com/auth/cloud-vision"

// VisionClient calls the Google Cloud Vision images:annotate REST method.
type VisionClient struct {
	endpoint   string
	languages  []string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVisionClient authenticates with the inline service-account JSON from
// cfg, or with application default credentials when none is given. When
// neither is available the client is returned not ready.
func NewVisionClient(ctx context.Context, cfg config.OCRConfig, logger *zap.Logger) *VisionClient {
	c := &VisionClient{
		endpoint:  strings.TrimRight(cfg.VisionEndpoint, "/"),
		languages: cfg.Languages,
		logger:    logger,
	}

	var (
		creds  *google.Credentials
		err    error
		source = "service_account"
	)
	if cfg.VisionCredentials != "" {
		creds, err = google.CredentialsFromJSON(ctx, []byte(cfg.VisionCredentials), visionScope)
	} else {
		source = "default"
		creds, err = google.FindDefaultCredentials(ctx, visionScope)
	}
	if err != nil {
		logger.Warn("Google Vision credentials unavailable, OCR disabled",
			zap.String("source", source),
			zap.Error(err),
		)
		return c
	}

	c.httpClient = oauth2.NewClient(ctx, creds.TokenSource)
	logger.Info("Google Vision client ready",
		zap.String("source", source),
		zap.String("project", creds.ProjectID),
	)
	return c
}

func (c *VisionClient) Ready() bool {
	return c.httpClient != nil
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image        imageContent  `json:"image"`
	Features     []feature     `json:"features"`
	ImageContext *imageContext `json:"imageContext,omitempty"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type string `json:"type"`
}

type imageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	TextAnnotations    []entityAnnotation `json:"textAnnotations"`
	FullTextAnnotation *textAnnotation    `json:"fullTextAnnotation"`
	Error              *status            `json:"error"`
}

type entityAnnotation struct {
	Description  string       `json:"description"`
	Score        float64      `json:"score"`
	Confidence   float64      `json:"confidence"`
	BoundingPoly boundingPoly `json:"boundingPoly"`
}

type boundingPoly struct {
	Vertices []Point `json:"vertices"`
}

type textAnnotation struct {
	Text  string `json:"text"`
	Pages []struct {
		Blocks []block `json:"blocks"`
	} `json:"pages"`
}

type block struct {
	BoundingBox boundingPoly `json:"boundingBox"`
	Confidence  float64      `json:"confidence"`
	Paragraphs  []struct {
		Words []struct {
			Symbols []struct {
				Text     string `json:"text"`
				Property *struct {
					DetectedBreak *struct {
						Type string `json:"type"`
					} `json:"detectedBreak"`
				} `json:"property"`
			} `json:"symbols"`
		} `json:"words"`
	} `json:"paragraphs"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Detect sends one images:annotate request with the feature matching mode.
func (c *VisionClient) Detect(ctx context.Context, image []byte, mode Mode) (Result, error) {
	if !c.Ready() {
		return Result{}, ErrNotConfigured
	}

	featureType := "DOCUMENT_TEXT_DETECTION"
	if mode == ModeText {
		featureType = "TEXT_DETECTION"
	}
	req := annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []feature{{Type: featureType}},
	}}}
	if len(c.languages) > 0 {
		req.Requests[0].ImageContext = &imageContext{LanguageHints: c.languages}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/images:annotate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return Result{}, fmt.Errorf("%w: token request failed: %v", ErrNotConfigured, err)
		}
		return Result{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, fmt.Errorf("%w: vision API rejected credentials (status %d)", ErrNotConfigured, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("vision API error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	var annotated annotateResponse
	if err := json.Unmarshal(respBody, &annotated); err != nil {
		return Result{}, fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(annotated.Responses) == 0 {
		return Result{Mode: mode}, nil
	}
	r := annotated.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return Result{}, fmt.Errorf("vision API error %d: %s", r.Error.Code, r.Error.Message)
	}

	result := Result{Mode: mode}
	switch {
	case r.FullTextAnnotation != nil && r.FullTextAnnotation.Text != "":
		result.Text = r.FullTextAnnotation.Text
	case len(r.TextAnnotations) > 0:
		result.Text = r.TextAnnotations[0].Description
	}

	if mode == ModeDocument && r.FullTextAnnotation != nil {
		for _, page := range r.FullTextAnnotation.Pages {
			for _, b := range page.Blocks {
				result.Fragments = append(result.Fragments, Fragment{
					Text:       b.text(),
					Confidence: b.Confidence,
					Polygon:    b.BoundingBox.Vertices,
				})
			}
		}
	} else if len(r.TextAnnotations) > 1 {
		// The first annotation is the whole text; the rest are words.
		for _, a := range r.TextAnnotations[1:] {
			conf := a.Confidence
			if conf == 0 {
				conf = a.Score
			}
			result.Fragments = append(result.Fragments, Fragment{
				Text:       a.Description,
				Confidence: conf,
				Polygon:    a.BoundingPoly.Vertices,
			})
		}
	}

	c.logger.Debug("Vision detection completed",
		zap.String("mode", string(mode)),
		zap.Int("text_length", len(result.Text)),
		zap.Int("fragments", len(result.Fragments)),
	)
	return result, nil
}

func (b block) text() string {
	var sb strings.Builder
	for _, p := range b.Paragraphs {
		for _, w := range p.Words {
			for _, s := range w.Symbols {
				sb.WriteString(s.Text)
				if s.Property == nil || s.Property.DetectedBreak == nil {
					continue
				}
				switch s.Property.DetectedBreak.Type {
				case "SPACE", "SURE_SPACE":
					sb.WriteByte(' ')
				case "EOL_SURE_SPACE", "LINE_BREAK":
					sb.WriteByte('\n')
				}
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
