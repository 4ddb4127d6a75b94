package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const listingPage = `<!DOCTYPE html>
<html><body>
<div class="contenido">
  <a href="/informacion/anuncian-obra-hidraulica-401234.html">Anuncian obra</a>
  <a href="/galerias/fotos-del-dia.php">Galería</a>
  <a href="/informacion/aprueban-presupuesto-401235.html">Aprueban presupuesto</a>
  <a href="https://example.com/informacion/externa-999.html">Externa</a>
  <a href="/columnas/opinion-401300.html">Opinión</a>
  <a href="/informacion/inauguran-hospital-401236.html">Inauguran hospital</a>
</div>
</body></html>`

const detailPage = `<!DOCTYPE html>
<html>
<head>
<meta name="keywords" content="veracruz, pol&iacute;tica, , xalapa">
</head>
<body>
<div id="areasuperiorColumna">
  <p id="seccion">Secci&oacute;n: Estado</p>
  <h1>Anuncian obra hidr&aacute;ulica en la capital</h1>
  <h2>La inversi&oacute;n supera los 50 mdp</h2>
  <h3><span id="lugar">Xalapa, Ver. 15/12/2024</span> Redacci&oacute;n Al Calor Pol&iacute;tico</h3>
</div>
<div class="cuerponota">
  <p>Primer p&aacute;rrafo del cuerpo.</p>
  <ins class="adsbygoogle"></ins>
  <script>var tracker = true;</script>
  <p>Segundo p&aacute;rrafo.<br>Tras un salto de l&iacute;nea.</p>
</div>
<script>
$.iLightBox([{URL: "/images/notas/originales/obra1.jpg", caption: "Vista de la obra"},{URL: "/images/notas/originales/obra2.jpg", caption: "Maquinaria"}], {skin: "dark"});
</script>
</body></html>`

func TestParseListing(t *testing.T) {
	t.Parallel()
	parser := NewPageParser("https://www.alcalorpolitico.com")

	refs, err := parser.ParseListing(listingPage)
	require.NoError(t, err)
	require.Len(t, refs, 3)

	require.Equal(t, "https://www.alcalorpolitico.com/informacion/anuncian-obra-hidraulica-401234.html", refs[0].URL)
	require.Equal(t, "https://www.alcalorpolitico.com/informacion/aprueban-presupuesto-401235.html", refs[1].URL)
	require.Equal(t, "https://www.alcalorpolitico.com/informacion/inauguran-hospital-401236.html", refs[2].URL)
	for i, ref := range refs {
		require.Equal(t, i, ref.Position)
	}
}

func TestParseListing_MissingContainer(t *testing.T) {
	t.Parallel()
	parser := NewPageParser("https://www.alcalorpolitico.com")

	refs, err := parser.ParseListing(`<html><body><p>Sin resultados</p></body></html>`)
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestParseListing_NoQualifyingLinks(t *testing.T) {
	t.Parallel()
	parser := NewPageParser("https://www.alcalorpolitico.com")

	refs, err := parser.ParseListing(`<html><body><div class="contenido">
		<a href="/galerias/fotos.php">Fotos</a>
		<a href="/informacion/indice.php">Índice</a>
	</div></body></html>`)
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestParseDetail(t *testing.T) {
	t.Parallel()
	parser := NewPageParser("https://www.alcalorpolitico.com")
	sourceURL := "https://www.alcalorpolitico.com/informacion/anuncian-obra-hidraulica-401234.html"

	article, err := parser.ParseDetail(detailPage, sourceURL)
	require.NoError(t, err)
	require.Equal(t, sourceURL, article.URL)
	require.False(t, article.ScrapedAt.IsZero())

	require.NotNil(t, article.ArticleID)
	require.Equal(t, "401234", *article.ArticleID)

	require.NotNil(t, article.Section)
	require.Equal(t, "Estado", *article.Section)
	require.NotNil(t, article.Title)
	require.Equal(t, "Anuncian obra hidráulica en la capital", *article.Title)
	require.NotNil(t, article.Subtitle)
	require.Equal(t, "La inversión supera los 50 mdp", *article.Subtitle)

	require.NotNil(t, article.Location)
	require.Equal(t, "Xalapa, Ver. 15/12/2024", *article.Location)
	require.NotNil(t, article.Date)
	require.Equal(t, "2024-12-15", *article.Date)
	require.NotNil(t, article.Source)
	require.Equal(t, "Redacción Al Calor Político", *article.Source)

	require.NotNil(t, article.Body)
	require.Equal(t, "Primer párrafo del cuerpo.\n\nSegundo párrafo.\nTras un salto de línea.", *article.Body)
	require.NotNil(t, article.BodyHTML)
	require.Contains(t, *article.BodyHTML, "cuerponota")
	require.NotContains(t, *article.BodyHTML, "<script")
	require.NotContains(t, *article.BodyHTML, "<ins")

	require.Len(t, article.Images, 2)
	require.Equal(t, "https://www.alcalorpolitico.com/images/notas/originales/obra1.jpg", article.Images[0].URL)
	require.Equal(t, "Vista de la obra", article.Images[0].Caption)
	require.Equal(t, "Maquinaria", article.Images[1].Caption)

	require.Equal(t, []string{"veracruz", "política", "xalapa"}, article.Keywords)
}

func TestParseDetail_MissingFields(t *testing.T) {
	t.Parallel()
	parser := NewPageParser("https://www.alcalorpolitico.com")

	article, err := parser.ParseDetail(`<html><body><p>Nada</p></body></html>`,
		"https://www.alcalorpolitico.com/informacion/indice.php")
	require.NoError(t, err)

	require.Nil(t, article.ArticleID)
	require.Nil(t, article.Title)
	require.Nil(t, article.Subtitle)
	require.Nil(t, article.Section)
	require.Nil(t, article.Location)
	require.Nil(t, article.Date)
	require.Nil(t, article.Source)
	require.Nil(t, article.Body)
	require.Nil(t, article.BodyHTML)
	require.Empty(t, article.Images)
	require.Empty(t, article.Keywords)
}

func TestParseDetail_FallbackImage(t *testing.T) {
	t.Parallel()
	parser := NewPageParser("https://www.alcalorpolitico.com")

	page := `<html><body>
	<div class="cuerponota"><p>Texto.</p></div>
	<a id="galerianotas" href="#"><img src="/images/notas/previas/nota7.jpg"></a>
	</body></html>`

	article, err := parser.ParseDetail(page, "https://www.alcalorpolitico.com/informacion/nota-7.html")
	require.NoError(t, err)
	require.Len(t, article.Images, 1)
	require.Equal(t, "https://www.alcalorpolitico.com/images/notas/originales/nota7.jpg", article.Images[0].URL)
	require.Empty(t, article.Images[0].Caption)
}

func TestNormalizeBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims lines", "  hola  \n  mundo  ", "hola\nmundo"},
		{"collapses blank runs", "uno\n\n\n\ndos", "uno\n\ndos"},
		{"whitespace only lines count as blank", "uno\n \t \n\n dos", "uno\n\ndos"},
		{"trims edges", "\n\n  texto  \n\n", "texto"},
		{"empty", "   \n\t\n ", ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeBody(tc.in)
			require.Equal(t, tc.want, got)
			require.Equal(t, got, NormalizeBody(got))
		})
	}
}
