package xref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/model"
)

func testCustomers() []model.Customer {
	return []model.Customer{
		{ID: 1, Name: "Fazenda Boa Vista Ltda", Document: "11.222.333/0001-81", City: "Uberaba"},
		{ID: 2, Name: "Armazém Central", Email: "Compras@Central.com.br", City: "Goiânia"},
		{ID: 3, Name: "Cerealista Pereira & Cia", City: "Rio Verde"},
		{ID: 4, Name: "Duplicate Doc", Document: "11222333000181"},
	}
}

func TestIndex_DocumentMatchIgnoresFormatting(t *testing.T) {
	idx := NewIndex(testCustomers())
	assert.Equal(t, 4, idx.Len())

	for _, doc := range []string{"11222333000181", "11.222.333/0001-81"} {
		m := idx.Match(&model.Owner{Document: doc})
		require.NotNil(t, m.CustomerID, doc)
		assert.Equal(t, int64(1), *m.CustomerID, "first customer wins on a shared document")
		assert.Equal(t, MethodDocument, m.Method)
		assert.Equal(t, ConfidenceDocument, m.Confidence)
		assert.True(t, m.Authoritative())
	}
}

func TestIndex_EmailMatchIsAdvisory(t *testing.T) {
	idx := NewIndex(testCustomers())
	m := idx.Match(&model.Owner{Document: "98765432100", Email: "compras@central.com.br"})
	require.NotNil(t, m.CustomerID)
	assert.Equal(t, int64(2), *m.CustomerID)
	assert.Equal(t, MethodEmail, m.Method)
	assert.Equal(t, ConfidenceEmail, m.Confidence)
	assert.False(t, m.Authoritative())
}

func TestIndex_NameCityMatch(t *testing.T) {
	idx := NewIndex(testCustomers())

	o := &model.Owner{
		LegalName: "Comercial XYZ",
		TradeName: "Cerealista Pereira",
		Locations: []model.Location{{AddressCity: "Jataí"}, {AddressCity: "RIO VERDE"}},
	}
	m := idx.Match(o)
	require.NotNil(t, m.CustomerID)
	assert.Equal(t, int64(3), *m.CustomerID)
	assert.Equal(t, MethodNameCity, m.Method)
	assert.Equal(t, ConfidenceNameCity, m.Confidence)
	assert.False(t, m.Authoritative())

	// Same name, different city.
	o.Locations = []model.Location{{AddressCity: "Jataí"}}
	assert.Nil(t, idx.Match(o).CustomerID)
}

func TestIndex_DocumentBeatsEmail(t *testing.T) {
	idx := NewIndex(testCustomers())
	m := idx.Match(&model.Owner{Document: "11222333000181", Email: "compras@central.com.br"})
	require.NotNil(t, m.CustomerID)
	assert.Equal(t, int64(1), *m.CustomerID)
}

func TestIndex_NoMatch(t *testing.T) {
	m := NewIndex(nil).Match(&model.Owner{Document: "11222333000181", LegalName: "X"})
	assert.Nil(t, m.CustomerID)
	assert.Zero(t, m.Confidence)
	assert.False(t, m.Authoritative())
}
