package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ettle/strcase"
	"github.com/shopspring/decimal"

	"github.com/vipul43/analytics-bridge/internal/models"
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("format error")

// FormatError reports a raw value that does not fit its field rule.
type FormatError struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("row %d: field %s: %s (value %q)", e.Row, e.Field, e.Reason, e.Value)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// Kind selects the transform applied to a field value.
type Kind int

const (
	Passthrough Kind = iota
	Date
	Amount
	TaxID
)

func (k Kind) String() string {
	switch k {
	case Date:
		return "date"
	case Amount:
		return "amount"
	case TaxID:
		return "tax_id"
	}
	return "passthrough"
}

// FieldRule maps one raw field to its formatted name and transform.
type FieldRule struct {
	Raw  string
	Name string
	Kind Kind
}

// Rules is the field table for the export views. See RuleFor for raw fields not listed here.
var Rules = []FieldRule{
	{Raw: "codemp", Name: "codigoEmpresa"},
	{Raw: "codfil", Name: "codigoFilial"},
	{Raw: "numped", Name: "numPedido"},
	{Raw: "datemi", Name: "dataEmissao", Kind: Date},
	{Raw: "codcli", Name: "codCliente"},
	{Raw: "nomcli", Name: "nomeCliente"},
	{Raw: "pedcli", Name: "pedidoCliente"},
	{Raw: "repfor", Name: "representanteFornecedor"},
	{Raw: "CNPJ_Representante", Name: "cnpj", Kind: TaxID},
	{Raw: "codrep", Name: "codRepresentante"},
	{Raw: "representante", Name: "representante"},
	{Raw: "codmoe", Name: "codMoeda"},
	{Raw: "desmoe", Name: "desMoeda"},
	{Raw: "codcpg", Name: "codCondicaoPagamento"},
	{Raw: "descpg", Name: "desCondicaoPagamento"},
	{Raw: "vlrori", Name: "valorOrig", Kind: Amount},
	{Raw: "marca", Name: "marca"},
	{Raw: "sitped", Name: "situacaoPedido"},
	{Raw: "pedsit", Name: "pedidoSituacao"},
	{Raw: "codven", Name: "codVendedor"},
	{Raw: "nomrep", Name: "nomeResponsavel"},
	{Raw: "snfnfs", Name: "serieNFs"},
	{Raw: "numnfs", Name: "numNFs"},
	{Raw: "datnfs", Name: "dataNFs", Kind: Date},
	{Raw: "valornfs", Name: "valorNFs", Kind: Amount},
	{Raw: "titulonfs", Name: "tituloNFs"},
	{Raw: "titulovlrnfs", Name: "tituloValorNFs", Kind: Amount},
	{Raw: "titulositnfs", Name: "tituloSituacaoNFs"},
	{Raw: "titulovctnfs", Name: "tituloVencimentoNFs"},
	{Raw: "diasnfs", Name: "diasNFs"},
	{Raw: "snfnfv", Name: "serieNFv"},
	{Raw: "numnfv", Name: "numNFv"},
	{Raw: "datnfv", Name: "dataNFv", Kind: Date},
	{Raw: "valornfv", Name: "valorNFv", Kind: Amount},
	{Raw: "titulonfv", Name: "tituloNFv"},
	{Raw: "titulovlrnfv", Name: "tituloValorNFv", Kind: Amount},
	{Raw: "titulositnfv", Name: "tituloSituacaoNFv"},
	{Raw: "titulovctnfv", Name: "tituloVencimentoNFv"},
	{Raw: "diasnfv", Name: "diasNFv"},
}

var rulesByRaw = func() map[string]FieldRule {
	m := make(map[string]FieldRule, len(Rules))
	for _, r := range Rules {
		m[r.Raw] = r
	}
	return m
}()

// RuleFor returns the rule for a raw field name. Unlisted names are renamed to camelCase;
// those containing "dat" in any case are dates, the rest pass through.
func RuleFor(raw string) FieldRule {
	if r, ok := rulesByRaw[raw]; ok {
		return r
	}
	rule := FieldRule{Raw: raw, Name: strcase.ToCamel(raw)}
	if strings.Contains(strings.ToLower(raw), "dat") {
		rule.Kind = Date
	}
	return rule
}

// Format converts raw rows into formatted records. The input is not modified.
// The first malformed value aborts the whole batch.
func Format(rows []models.RawRecord) ([]models.FormattedRecord, error) {
	out := make([]models.FormattedRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := FormatRecord(row)
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				fe.Row = i
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FormatRecord converts a single raw row.
func FormatRecord(row models.RawRecord) (models.FormattedRecord, error) {
	rec := make(models.FormattedRecord, len(row))
	for raw, value := range row {
		rule := RuleFor(raw)
		v, err := apply(rule, value)
		if err != nil {
			return nil, err
		}
		rec[rule.Name] = v
	}
	return rec, nil
}

func apply(rule FieldRule, value *string) (any, error) {
	if value == nil {
		return nil, nil
	}
	s := *value
	if strings.TrimSpace(s) == "" {
		return s, nil
	}

	var (
		out any
		err error
	)
	switch rule.Kind {
	case Date:
		out, err = FormatDate(s)
	case Amount:
		out, err = ParseAmount(s)
	case TaxID:
		out, err = FormatTaxID(s)
	default:
		return s, nil
	}
	if err != nil {
		return nil, &FormatError{Field: rule.Raw, Value: s, Reason: err.Error()}
	}
	return out, nil
}

var dateLayouts = []string{
	"2 Jan, 2006 15:04:05",
	"2 Jan, 2006 15:04",
	"2 Jan, 2006",
}

// FormatDate renders a platform date ("05 Jan, 2024 10:00:00") as DD/MM/YYYY.
func FormatDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006"), nil
		}
	}
	return "", errors.New("unrecognized date")
}

// FormatTaxID strips separator commas and punctuates a 14 digit CNPJ as NN.NNN.NNN/NNNN-NN.
func FormatTaxID(s string) (string, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if len(digits) != 14 {
		return "", fmt.Errorf("expected 14 digits, got %d characters", len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", errors.New("tax id must be numeric")
		}
	}
	return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14], nil
}

// ParseAmount converts "1.234,56" into the JSON number 1234.56.
func ParseAmount(s string) (json.Number, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	normalized = strings.Replace(normalized, ",", ".", 1)

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return "", errors.New("not a decimal amount")
	}
	return json.Number(d.String()), nil
}
