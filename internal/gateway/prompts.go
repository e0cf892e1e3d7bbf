package gateway

import "github.com/tbourn/go-sitegen-backend/internal/domain"

const markupOnlyPrompt = `You are an expert web developer who creates beautiful, modern websites.
Based on the user's description, generate detailed HTML/CSS code for a complete webpage.
Include modern design elements, proper styling, responsive layout, and semantic HTML.
Make it visually stunning with gradients, animations, and modern UI patterns.
Return ONLY the complete HTML code with inline CSS, ready to render. Do not wrap it in JSON or add commentary.`

const fullStackPrompt = `You are an expert full-stack web developer. Generate complete, production-ready code based on the user's request.

For the FRONTEND, provide:
- Complete HTML with modern, responsive design
- Inline CSS and JavaScript
- Beautiful, professional UI

For the BACKEND (if requested), provide:
- Database schema (PostgreSQL format)
- Serverless function code
- API endpoints and authentication logic

Return a single JSON object with this structure:
{
  "html": "complete HTML code",
  "hasBackend": true,
  "backendCode": "function code if needed, otherwise null",
  "databaseSchema": "SQL schema if needed, otherwise null",
  "edgeFunctions": [{"name": "function-name", "description": "what it does"}]
}

If no backend is needed, just return the HTML in the html field with hasBackend: false.`

// SystemPrompt returns the fixed instruction text for req. Only
// IncludeBackend selects the template; media flags never change it.
func SystemPrompt(req domain.GenerationRequest) string {
	if req.IncludeBackend {
		return fullStackPrompt
	}
	return markupOnlyPrompt
}
