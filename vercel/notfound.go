package vercel

import (
	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/utils"
	pongo2 "github.com/flosch/pongo2/v6"
)

const notFoundTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>404 Resource Not Found</title>
<style>
body { color: #006ce9; background-color: #fafafa; padding: 30px; font-family: sans-serif; }
p { max-width: 600px; margin: 60px auto 30px auto; background: white; border-radius: 4px; box-shadow: 0px 0px 50px -20px #006ce9; overflow: hidden; }
strong { display: inline-block; padding: 15px; background: #006ce9; color: white; }
span { display: inline-block; padding: 15px; }
</style>
</head>
<body><p><strong>404</strong> <span>{{ path }} not found</span></p></body>
</html>
`

var notFoundPage = pongo2.Must(pongo2.FromString(notFoundTemplate))

// DefaultNotFound renders the built-in 404 page for path.
func DefaultNotFound(path string) string {
	out, err := notFoundPage.Execute(pongo2.Context{"path": path})
	if err != nil {
		utils.Warn(constants.LogRenderNotFound, err)
		return "Not Found"
	}
	return out
}
