package policy

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Stored is a policy row read back from a table.
type Stored struct {
	ID                        int64   `json:"id"`
	Contratante               *string `json:"Contratante"`
	NumeroDePoliza            *string `json:"Número_de_póliza"`
	TipoDePoliza              *string `json:"Tipo_de_Póliza"`
	TipoDePlan                *string `json:"Tipo_de_Plan"`
	Direccion                 *string `json:"Dirección"`
	RFC                       *string `json:"R_F_C"`
	Telefono                  *string `json:"Teléfono"`
	CodigoCliente             *string `json:"Código_Cliente"`
	VigenciaDesde             *string `json:"Vigencia_Desde"`
	VigenciaHasta             *string `json:"Vigencia_Hasta"`
	FechaDeExpedicion         *string `json:"Fecha_de_Expedición"`
	FormaDePago               *string `json:"Forma_de_Pago"`
	PrimaNeta                 Amount  `json:"Prima_Neta_MXN"`
	RecargoPorPagoFraccionado Amount  `json:"Recargo_por_Pago_Fraccionado_MXN"`
	ImporteAPagar             Amount  `json:"Importe_a_Pagar_MXN"`
	Beneficiarios             *string `json:"Beneficiarios"`
	EdadDeContratacion        *string `json:"Edad_de_Contratación"`
	TipoDeRiesgo              *string `json:"Tipo_de_Riesgo"`
	Fumador                   *string `json:"Fumador"`
	Coberturas                *string `json:"Coberturas"`
}

// ScanTargets returns pointers for scanning "id" followed by the policy
// columns in table order.
func (s *Stored) ScanTargets() []any {
	return []any{
		&s.ID,
		&s.Contratante,
		&s.NumeroDePoliza,
		&s.TipoDePoliza,
		&s.TipoDePlan,
		&s.Direccion,
		&s.RFC,
		&s.Telefono,
		&s.CodigoCliente,
		&s.VigenciaDesde,
		&s.VigenciaHasta,
		&s.FechaDeExpedicion,
		&s.FormaDePago,
		&s.PrimaNeta,
		&s.RecargoPorPagoFraccionado,
		&s.ImporteAPagar,
		&s.Beneficiarios,
		&s.EdadDeContratacion,
		&s.TipoDeRiesgo,
		&s.Fumador,
		&s.Coberturas,
	}
}

// Amount is a nullable real column. SQLite keeps non-numeric text in REAL
// columns, so an Amount carries either a number or the text it was stored as.
type Amount struct {
	Num     float64
	Text    string
	Numeric bool
	Valid   bool
}

// Float returns a valid numeric Amount.
func Float(v float64) Amount {
	return Amount{Num: v, Numeric: true, Valid: true}
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	*a = Amount{}
	switch v := src.(type) {
	case nil:
		return nil
	case float64:
		*a = Float(v)
	case float32:
		*a = Float(float64(v))
	case int64:
		*a = Float(float64(v))
	case []byte:
		a.scanText(string(v))
	case string:
		a.scanText(v)
	default:
		return fmt.Errorf("amount: unsupported scan type %T", src)
	}
	return nil
}

func (a *Amount) scanText(s string) {
	if f, err := strconv.ParseFloat(s, 64); err == nil && isFinite(f) {
		*a = Float(f)
		return
	}
	*a = Amount{Text: s, Valid: true}
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	if !a.Valid {
		return nil, nil
	}
	if a.Numeric {
		return a.Num, nil
	}
	return a.Text, nil
}

// MarshalJSON encodes NULL as null, numbers as JSON numbers and stored text
// as a JSON string. Infinite and NaN numbers have no JSON form and encode as
// null.
func (a Amount) MarshalJSON() ([]byte, error) {
	switch {
	case !a.Valid, a.Numeric && !isFinite(a.Num):
		return []byte("null"), nil
	case a.Numeric:
		return json.Marshal(a.Num)
	default:
		return json.Marshal(a.Text)
	}
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
