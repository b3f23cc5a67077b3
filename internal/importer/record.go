package importer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/geo"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/pkg/document"
)

// Accepted header spellings per field, in canonical form.
var (
	colDocument   = []string{"documento", "cpf_cnpj", "cnpj_cpf", "cnpj", "cpf", "document"}
	colType       = []string{"tipo_pessoa", "tipo", "type"}
	colLegalName  = []string{"razao_social", "nome_proprietario", "proprietario", "nome", "legal_name"}
	colTradeName  = []string{"nome_fantasia", "trade_name"}
	colPhone      = []string{"telefone", "phone"}
	colEmail      = []string{"email", "e_mail"}
	colRevenue    = []string{"faturamento_estimado", "estimated_revenue"}
	colStreet     = []string{"logradouro", "endereco", "address_street"}
	colNumber     = []string{"numero", "address_number"}
	colDistrict   = []string{"bairro", "address_district"}
	colCity       = []string{"municipio", "cidade", "address_city"}
	colState      = []string{"uf", "estado", "address_state"}
	colZip        = []string{"cep", "address_zip"}
	colLat        = []string{"latitude", "lat"}
	colLon        = []string{"longitude", "lon", "lng"}
	colFarm       = []string{"nome_fazenda", "fazenda", "farm_name"}
	colStateReg   = []string{"inscricao_estadual", "ie", "state_registration"}
	colInmetro    = []string{"numero_inmetro", "inmetro", "inmetro_number"}
	colInstrType  = []string{"tipo_instrumento", "instrumento", "instrument_type"}
	colCapacity   = []string{"capacidade", "capacity"}
	colStatus     = []string{"situacao", "resultado", "status", "current_status"}
	colLastVerif  = []string{"data_ultima_verificacao", "ultima_verificacao", "last_verification_at"}
	colNextVerif  = []string{"data_proxima_verificacao", "proxima_verificacao", "validade", "next_verification_at"}
	colExecutor   = []string{"orgao_executor", "executor", "last_executor"}
	dateLayouts   = []string{"02/01/2006", model.DateLayout, "02-01-2006", time.RFC3339, "2006-01-02 15:04:05"}
	excelEpoch    = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	statusAliases = map[string]model.InstrumentStatus{
		"aprovado":  model.InstrumentApproved,
		"approved":  model.InstrumentApproved,
		"reprovado": model.InstrumentRejected,
		"rejeitado": model.InstrumentRejected,
		"rejected":  model.InstrumentRejected,
		"reparado":  model.InstrumentRepaired,
		"repaired":  model.InstrumentRepaired,
	}
)

// record is one parsed extract row. Instrument is nil for rows that only
// describe an owner or location.
type record struct {
	Owner      model.Owner
	Location   model.Location
	Instrument *model.Instrument
}

// parseRecord validates r and maps it onto the registry entities.
func parseRecord(r row) (*record, error) {
	raw := r.get(colDocument...)
	if raw == "" {
		return nil, apperr.Validation("document is required")
	}
	ownerType := ownerTypeOf(r.get(colType...), raw)
	doc, err := document.Validate(string(ownerType), raw)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, apperr.CodeInvalidDocument, "invalid document "+raw)
	}
	name := r.get(colLegalName...)
	if name == "" {
		return nil, apperr.Validation("legal name is required")
	}

	rec := &record{
		Owner: model.Owner{
			Type:      ownerType,
			Document:  doc,
			LegalName: name,
			TradeName: r.get(colTradeName...),
			Phone:     r.get(colPhone...),
			Email:     strings.ToLower(r.get(colEmail...)),
		},
		Location: model.Location{
			AddressStreet:     r.get(colStreet...),
			AddressNumber:     r.get(colNumber...),
			AddressDistrict:   r.get(colDistrict...),
			AddressCity:       r.get(colCity...),
			AddressState:      strings.ToUpper(r.get(colState...)),
			AddressZip:        document.Normalize(r.get(colZip...)),
			FarmName:          r.get(colFarm...),
			StateRegistration: r.get(colStateReg...),
		},
	}
	if v := r.get(colRevenue...); v != "" {
		d, err := parseDecimal(v)
		if err != nil {
			return nil, apperr.Validation("invalid estimated revenue %q", v)
		}
		rec.Owner.EstimatedRevenue = decimal.NewNullDecimal(d)
	}
	lat, lon, err := parseCoords(r.get(colLat...), r.get(colLon...))
	if err != nil {
		return nil, err
	}
	rec.Location.Latitude, rec.Location.Longitude = lat, lon
	rec.Location.Key = locationKey(rec.Location)

	if number := r.get(colInmetro...); number != "" {
		in := &model.Instrument{
			InmetroNumber:  strings.ToUpper(number),
			InstrumentType: r.get(colInstrType...),
			Capacity:       r.get(colCapacity...),
			CurrentStatus:  statusOf(r.get(colStatus...)),
			LastExecutor:   r.get(colExecutor...),
		}
		if in.LastVerificationAt, err = parseDate(r.get(colLastVerif...)); err != nil {
			return nil, apperr.Validation("invalid last verification date: %v", err)
		}
		if in.NextVerificationAt, err = parseDate(r.get(colNextVerif...)); err != nil {
			return nil, apperr.Validation("invalid next verification date: %v", err)
		}
		rec.Instrument = in
	}
	return rec, nil
}

// ownerTypeOf reads an explicit type column, falling back to the document
// length.
func ownerTypeOf(v, doc string) model.OwnerType {
	switch strings.ToLower(v) {
	case "pf", "fisica", "pessoa_fisica", "pessoa fisica", "física", "pessoa física":
		return model.OwnerTypePF
	case "pj", "juridica", "pessoa_juridica", "pessoa juridica", "jurídica", "pessoa jurídica":
		return model.OwnerTypePJ
	}
	return model.OwnerType(document.Kind(doc))
}

func statusOf(v string) model.InstrumentStatus {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
		return s
	}
	return model.InstrumentUnknown
}

// locationKey identifies a site within one owner across imports: the state
// registration when present, else the normalized address and farm name.
func locationKey(l model.Location) string {
	if ie := document.Normalize(l.StateRegistration); ie != "" {
		return "ie:" + ie
	}
	parts := []string{l.FarmName, l.AddressStreet, l.AddressNumber, l.AddressCity, l.AddressState}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(fold(p, ' '))
		b.WriteByte('|')
	}
	key := strings.Trim(b.String(), "|")
	if key == "" {
		return "main"
	}
	return "addr:" + key
}

// parseDate accepts the extract date layouts and Excel serial numbers.
func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 && serial < 2958466 {
		t := excelEpoch.AddDate(0, 0, int(math.Floor(serial)))
		return &t, nil
	}
	return nil, eris.Errorf("unrecognized date %q", v)
}

// parseDecimal accepts "1234.56", "1.234,56" and "R$ 1.234,56".
func parseDecimal(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "R$"))
	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ".", "")
		v = strings.ReplaceAll(v, ",", ".")
	}
	return decimal.NewFromString(v)
}

func parseCoords(latS, lonS string) (*float64, *float64, error) {
	if latS == "" || lonS == "" {
		return nil, nil, nil
	}
	lat, err := strconv.ParseFloat(strings.ReplaceAll(latS, ",", "."), 64)
	if err != nil {
		return nil, nil, apperr.Validation("invalid latitude %q", latS)
	}
	lon, err := strconv.ParseFloat(strings.ReplaceAll(lonS, ",", "."), 64)
	if err != nil {
		return nil, nil, apperr.Validation("invalid longitude %q", lonS)
	}
	if !geo.ValidCoords(lat, lon) {
		return nil, nil, apperr.Validation("coordinates out of range (%s, %s)", latS, lonS)
	}
	return &lat, &lon, nil
}
