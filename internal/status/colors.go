package status

// Palette is the (background, foreground) presentation pair of a status
// label. Pure styling, but the lookup must be total: every label resolves,
// unknowns get the default pair.
type Palette struct {
	Background string `json:"background"`
	Foreground string `json:"foreground"`
}

var defaultPalette = Palette{Background: "#ECEFF1", Foreground: "#455A64"}

var clientPalettes = map[Client]Palette{
	ClientNueva:       {Background: "#E3F2FD", Foreground: "#1565C0"},
	ClientContactada:  {Background: "#E0F7FA", Foreground: "#00838F"},
	ClientPresupuesta: {Background: "#FFF8E1", Foreground: "#F9A825"},
	ClientRechazada:   {Background: "#FBE9E7", Foreground: "#D84315"},
	ClientEnEjecucion: {Background: "#E8F5E9", Foreground: "#2E7D32"},
	ClientValidando:   {Background: "#F3E5F5", Foreground: "#6A1B9A"},
	ClientTerminado:   {Background: "#E8EAF6", Foreground: "#283593"},
	ClientEliminada:   {Background: "#EFEBE9", Foreground: "#4E342E"},
}

var proPalettes = map[Pro]Palette{
	ProNueva:       {Background: "#E3F2FD", Foreground: "#1565C0"},
	ProVista:       {Background: "#E1F5FE", Foreground: "#0277BD"},
	ProContactada:  {Background: "#E0F7FA", Foreground: "#00838F"},
	ProPresupuesta: {Background: "#FFF8E1", Foreground: "#F9A825"},
	ProRechazada:   {Background: "#FBE9E7", Foreground: "#D84315"},
	ProGanada:      {Background: "#E8F5E9", Foreground: "#1B5E20"},
	ProPerdida:     {Background: "#FAFAFA", Foreground: "#757575"},
	ProAceptado:    {Background: "#F1F8E9", Foreground: "#558B2F"},
	ProEnEjecucion: {Background: "#E8F5E9", Foreground: "#2E7D32"},
	ProValidando:   {Background: "#F3E5F5", Foreground: "#6A1B9A"},
	ProValoracion:  {Background: "#FFF3E0", Foreground: "#EF6C00"},
	ProTerminado:   {Background: "#E8EAF6", Foreground: "#283593"},
	ProArchivada:   {Background: "#ECEFF1", Foreground: "#546E7A"},
	ProCerrada:     {Background: "#EFEBE9", Foreground: "#4E342E"},
}

// ClientPalette returns the presentation pair for a client-side label.
func ClientPalette(label Client) Palette {
	if palette, ok := clientPalettes[label]; ok {
		return palette
	}
	return defaultPalette
}

// ProPalette returns the presentation pair for a professional-side label.
func ProPalette(label Pro) Palette {
	if palette, ok := proPalettes[label]; ok {
		return palette
	}
	return defaultPalette
}
