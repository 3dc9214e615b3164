package catalog

// Header aliases, in lookup priority order. Upstream sheets are maintained by
// hand so the same column shows up under many spellings.
var (
	ClientCodeAliases = []string{"Codigo Cliente", "CODIGO_CLIENTE", "Codigo", "CODIGO", "CodigoCliente", "Codigo_cliente"}
	ClientNameAliases = []string{"Cliente", "CLIENTE", "NOMBRE", "NOMBRE NEGOCIO", "Nombre negocio"}

	MunicipioAliases    = []string{"Municipio", "MUNICIPIO", "municipio"}
	DepartamentoAliases = []string{"Departamento", "DEPARTAMENTO", "departamento"}
	DistritoAliases     = []string{"Distrito", "DISTRITO", "distrito"}

	ProductNameAliases = []string{"PRODUCTO", "PRODUCT", "PRODUCT_NAME", "PRODUCTO_NOMBRE"}
	ProductCodeAliases = []string{"CODIGO", "COD", "CODE"}
)

// PriceAliases holds one alias list per tier.
type PriceAliases [3][]string

// DefaultPriceAliases is what product sheets use in practice.
var DefaultPriceAliases = PriceAliases{
	{"PRECIO-01", "PRECIO_01", "PRECIO01", "PRECIO1", "PRECIO UNIDAD", "PRECIO", "PRECIO UNITARIO", "PRECIO-1", "PRECIO_1"},
	{"PRECIO-02", "PRECIO_02", "PRECIO02", "PRECIO2", "PRECIO-2", "PRECIO_2"},
	{"PRECIO-03", "PRECIO_03", "PRECIO03", "PRECIO3", "PRECIO-3", "PRECIO_3"},
}

const (
	DefaultClientName  = "Sin Nombre"
	DefaultProductName = "Producto"
)

// ClientHeaders lists every alias that can identify a client sheet header.
func ClientHeaders() []string {
	return concat(ClientCodeAliases, ClientNameAliases, MunicipioAliases, DepartamentoAliases, DistritoAliases)
}

// ProductHeaders lists every alias that can identify a product sheet header.
func ProductHeaders() []string {
	return concat(ProductNameAliases, ProductCodeAliases, DefaultPriceAliases[0], DefaultPriceAliases[1], DefaultPriceAliases[2])
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
