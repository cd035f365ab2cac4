package export

import (
	"fmt"
	"html"
	"strings"
)

const fontStack = "Arial Unicode MS, Noto Sans Devanagari, sans-serif"

const htmlTemplate = `<!DOCTYPE html>
<html>
    <head>
        <meta charset="UTF-8">
        <title>Converted Devanagari Text</title>
        <style>
            body {
                font-family: %s;
                margin: 2em;
                line-height: 1.5;
            }
        </style>
    </head>
    <body>
        <div>
            %s
        </div>
    </body>
</html>
`

const printTemplate = `<!DOCTYPE html>
<html>
    <head>
        <meta charset="UTF-8">
        <title>Converted Devanagari Text</title>
        <style>
            @page {
                size: A4;
                margin: 2cm;
            }
            body {
                font-family: %s;
                font-size: 12pt;
                line-height: 1.5;
            }
            p {
                margin: 0;
                padding: 0;
                text-align: justify;
            }
        </style>
    </head>
    <body>
        <div>%s</div>
    </body>
</html>
`

// bodyHTML escapes text and turns newlines into <br>.
func bodyHTML(text string) string {
	escaped := html.EscapeString(strings.ReplaceAll(text, "\r\n", "\n"))
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// HTMLDocument wraps text for the html export.
func HTMLDocument(text string) string {
	return fmt.Sprintf(htmlTemplate, fontStack, bodyHTML(text))
}

// PrintDocument wraps text for PDF rendering: A4 pages, 2cm margins, 12pt.
func PrintDocument(text string) string {
	return fmt.Sprintf(printTemplate, fontStack, bodyHTML(text))
}
