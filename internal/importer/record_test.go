package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

func testRow(fields map[string]string) row {
	return row{line: 2, fields: fields}
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord(testRow(map[string]string{
		"cnpj":                     "11.222.333/0001-81",
		"razao_social":             "Agro Boa Vista Ltda",
		"email":                    "Contato@BoaVista.com.br",
		"faturamento_estimado":     "R$ 1.250.000,50",
		"municipio":                "Rio Verde",
		"uf":                       "go",
		"cep":                      "75.901-000",
		"latitude":                 "-17,79",
		"longitude":                "-50,92",
		"inscricao_estadual":       "10.123.456-7",
		"numero_inmetro":           "inm-001",
		"situacao":                 "Reprovado",
		"data_ultima_verificacao":  "15/03/2024",
		"data_proxima_verificacao": "2025-03-15",
	}))
	require.NoError(t, err)

	assert.Equal(t, model.OwnerTypePJ, rec.Owner.Type)
	assert.Equal(t, "11222333000181", rec.Owner.Document)
	assert.Equal(t, "contato@boavista.com.br", rec.Owner.Email)
	require.True(t, rec.Owner.EstimatedRevenue.Valid)
	assert.Equal(t, "1250000.5", rec.Owner.EstimatedRevenue.Decimal.String())

	assert.Equal(t, "GO", rec.Location.AddressState)
	assert.Equal(t, "75901000", rec.Location.AddressZip)
	assert.Equal(t, "ie:101234567", rec.Location.Key)
	require.NotNil(t, rec.Location.Latitude)
	assert.InDelta(t, -17.79, *rec.Location.Latitude, 1e-9)

	require.NotNil(t, rec.Instrument)
	assert.Equal(t, "INM-001", rec.Instrument.InmetroNumber)
	assert.Equal(t, model.InstrumentRejected, rec.Instrument.CurrentStatus)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *rec.Instrument.LastVerificationAt)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), *rec.Instrument.NextVerificationAt)
}

func TestParseRecord_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		code   apperr.Code
	}{
		{name: "missing document", fields: map[string]string{"nome": "X"}, code: apperr.CodeInvalidInput},
		{name: "bad check digits", fields: map[string]string{"cpf": "529.982.247-24", "nome": "X"}, code: apperr.CodeInvalidDocument},
		{name: "type mismatch", fields: map[string]string{"documento": cpfA, "tipo_pessoa": "PJ", "nome": "X"}, code: apperr.CodeInvalidDocument},
		{name: "unknown length", fields: map[string]string{"documento": "12345", "nome": "X"}, code: apperr.CodeInvalidDocument},
		{name: "missing name", fields: map[string]string{"documento": cpfA}, code: apperr.CodeInvalidInput},
		{name: "bad coordinates", fields: map[string]string{"documento": cpfA, "nome": "X", "lat": "95", "lon": "10"}, code: apperr.CodeInvalidInput},
		{name: "bad date", fields: map[string]string{"documento": cpfA, "nome": "X", "inmetro": "A1", "validade": "soon"}, code: apperr.CodeInvalidInput},
		{name: "bad revenue", fields: map[string]string{"documento": cpfA, "nome": "X", "estimated_revenue": "lots"}, code: apperr.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecord(testRow(tt.fields))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestParseRecord_OwnerOnly(t *testing.T) {
	rec, err := parseRecord(testRow(map[string]string{"cpf": "529.982.247-25", "nome": "Maria"}))
	require.NoError(t, err)
	assert.Equal(t, model.OwnerTypePF, rec.Owner.Type)
	assert.Nil(t, rec.Instrument)
	assert.Equal(t, "main", rec.Location.Key)
	assert.False(t, rec.Owner.EstimatedRevenue.Valid)
}

func TestLocationKey(t *testing.T) {
	a := locationKey(model.Location{FarmName: "Fazenda São João", AddressCity: "Jataí", AddressState: "GO"})
	b := locationKey(model.Location{FarmName: "FAZENDA SAO  JOAO", AddressCity: "jatai", AddressState: "go"})
	assert.Equal(t, a, b)
	assert.Equal(t, "addr:fazenda sao joao|||jatai|go", a)
	assert.NotEqual(t, a, locationKey(model.Location{FarmName: "Fazenda Santa Rita", AddressCity: "Jataí"}))
}

func TestParseDate(t *testing.T) {
	for in, want := range map[string]time.Time{
		"01/06/2024":           time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		"2024-06-01":           time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		"01-06-2024":           time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		"2024-06-01T10:00:00Z": time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		"45444":                time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	} {
		got, err := parseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, *got, in)
	}

	got, err := parseDate("  ")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDate("junho")
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, model.InstrumentApproved, statusOf(" APROVADO "))
	assert.Equal(t, model.InstrumentRepaired, statusOf("reparado"))
	assert.Equal(t, model.InstrumentUnknown, statusOf("em análise"))
	assert.Equal(t, model.InstrumentUnknown, statusOf(""))
}
