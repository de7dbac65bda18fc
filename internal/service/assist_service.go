package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"stroycrm/internal/extract"
	"stroycrm/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

const assistInstruction = `Ты помощник бухгалтера строительной компании. Тебе дают текст российского счёта на оплату, распознанный OCR, и список полей, которые не удалось найти автоматически.

Правила:
- Верни ТОЛЬКО JSON-объект, без markdown и комментариев.
- Ключи объекта - только имена полей из списка.
- Значения - строки, ровно как в документе. Даты в формате YYYY-MM-DD.
- Если значения нет в тексте, не включай ключ. Не придумывай данные.`

var (
	innRe = regexp.MustCompile(`^\d{10}(?:\d{2})?$`)
	kppRe = regexp.MustCompile(`^\d{9}$`)
	vatRe = regexp.MustCompile(`^\d{1,2}$`)
)

// AssistService asks GigaChat for the fields the regex rules missed.
type AssistService struct {
	client   *gigago.Client
	complete func(ctx context.Context, prompt string) (string, error)
	timeout  time.Duration
	logger   *zap.Logger
}

func NewAssistService(cfg *config.GigaChatConfig, logger *zap.Logger) (*AssistService, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(context.Background(), cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = assistInstruction
	model.Temperature = 0

	s := &AssistService{
		client:  client,
		timeout: 30 * time.Second,
		logger:  logger,
	}
	s.complete = func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.Generate(ctx, []gigago.Message{
			{Role: gigago.RoleUser, Content: prompt},
		})
		if err != nil {
			return "", fmt.Errorf("failed to generate response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response from LLM")
		}
		return resp.Choices[0].Message.Content, nil
	}

	logger.Info("GigaChat field assist enabled")
	return s, nil
}

// Complete fills the missing top-level fields of fields from the model's
// answer and returns the names it filled. Values that fail the same
// format checks the rules apply are dropped.
func (s *AssistService) Complete(ctx context.Context, text string, fields *extract.Fields) ([]string, error) {
	missing := fields.Missing()
	if len(missing) == 0 {
		return nil, nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf("Поля: %s\n\nТекст счёта:\n%s", strings.Join(missing, ", "), text)
	content, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	values, err := parseAssistAnswer(content)
	if err != nil {
		return nil, err
	}

	filled := mergeAssisted(fields, values)
	s.logger.Info("Field assist completed",
		zap.Strings("requested", missing),
		zap.Strings("filled", filled),
	)
	return filled, nil
}

func (s *AssistService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// parseAssistAnswer pulls the first JSON object out of a model answer,
// tolerating markdown fences and chatter around it.
func parseAssistAnswer(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("invalid response format: %s", content)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &values); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w, content: %s", err, content)
	}
	return values, nil
}

// mergeAssisted writes valid values into unset fields only.
func mergeAssisted(fields *extract.Fields, values map[string]any) []string {
	var filled []string
	set := func(name string, dst **string, accept func(string) (string, bool)) {
		if *dst != nil {
			return
		}
		raw, ok := stringValue(values[name])
		if !ok {
			return
		}
		v, ok := accept(raw)
		if !ok {
			return
		}
		*dst = &v
		filled = append(filled, name)
	}

	set("invoiceNumber", &fields.InvoiceNumber, nonEmpty)
	set("issueDate", &fields.IssueDate, assistDate)
	set("dueDate", &fields.DueDate, assistDate)
	set("totalAmount", &fields.TotalAmount, assistAmount)
	set("vatAmount", &fields.VATAmount, assistAmount)
	set("vatRate", &fields.VATRate, matching(vatRe))
	set("supplier.name", &fields.Supplier.Name, nonEmpty)
	set("supplier.inn", &fields.Supplier.INN, matching(innRe))
	set("supplier.kpp", &fields.Supplier.KPP, matching(kppRe))

	if fields.TotalAmount != nil && fields.TotalAmountValue == nil {
		fields.TotalAmountValue = canonicalAmount(fields.TotalAmount)
	}
	if fields.VATAmount != nil && fields.VATAmountValue == nil {
		fields.VATAmountValue = canonicalAmount(fields.VATAmount)
	}
	return filled
}

func stringValue(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.2f", v), ".00"), true
	}
	return "", false
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}

func assistDate(s string) (string, bool) {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s, true
	}
	return extract.ParseDate(s)
}

func assistAmount(s string) (string, bool) {
	if _, ok := extract.NormalizeAmount(s); !ok {
		return "", false
	}
	return strings.Join(strings.Fields(s), ""), true
}

func matching(re *regexp.Regexp) func(string) (string, bool) {
	return func(s string) (string, bool) {
		s = strings.TrimSuffix(s, "%")
		return s, re.MatchString(s)
	}
}
