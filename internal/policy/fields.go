// Package policy defines the insurance policy record imported from CSV files:
// the fixed column list, header normalization, and the row-to-record mapping.
package policy

// FieldType is the storage type of a policy column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldReal
)

// String returns the type name shown in the expected column list.
func (t FieldType) String() string {
	if t == FieldReal {
		return "real"
	}
	return "text"
}

// FieldSpec describes one policy column.
type FieldSpec struct {
	Column string    // Normalized CSV header, also the table column name
	Label  string    // Display label
	Type   FieldType // Storage type
}

// Fields lists the policy columns in table order. Every import table and the
// aggregate table share this layout, prefixed by a store-assigned id.
var Fields = fieldTable[:]

// FieldCount is the number of policy columns, excluding id.
const FieldCount = len(fieldTable)

var fieldTable = [...]FieldSpec{
	{Column: "Contratante", Label: "Holder", Type: FieldText},
	{Column: "Número_de_póliza", Label: "Policy number", Type: FieldText},
	{Column: "Tipo_de_Póliza", Label: "Policy type", Type: FieldText},
	{Column: "Tipo_de_Plan", Label: "Plan type", Type: FieldText},
	{Column: "Dirección", Label: "Address", Type: FieldText},
	{Column: "R_F_C", Label: "Tax ID (RFC)", Type: FieldText},
	{Column: "Teléfono", Label: "Phone", Type: FieldText},
	{Column: "Código_Cliente", Label: "Client code", Type: FieldText},
	{Column: "Vigencia_Desde", Label: "Coverage start", Type: FieldText},
	{Column: "Vigencia_Hasta", Label: "Coverage end", Type: FieldText},
	{Column: "Fecha_de_Expedición", Label: "Issued", Type: FieldText},
	{Column: "Forma_de_Pago", Label: "Payment form", Type: FieldText},
	{Column: "Prima_Neta_MXN", Label: "Net premium (MXN)", Type: FieldReal},
	{Column: "Recargo_por_Pago_Fraccionado_MXN", Label: "Installment surcharge (MXN)", Type: FieldReal},
	{Column: "Importe_a_Pagar_MXN", Label: "Amount payable (MXN)", Type: FieldReal},
	{Column: "Beneficiarios", Label: "Beneficiaries", Type: FieldText},
	{Column: "Edad_de_Contratación", Label: "Contracting age", Type: FieldText},
	{Column: "Tipo_de_Riesgo", Label: "Risk type", Type: FieldText},
	{Column: "Fumador", Label: "Smoker", Type: FieldText},
	{Column: "Coberturas", Label: "Coverages", Type: FieldText},
}

// Columns returns the column names in table order.
func Columns() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}
