package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thebtf/switchboard/internal/routes"
	"github.com/thebtf/switchboard/pkg/models"
)

// maxSuggestions caps follow-up suggestions attached to empty results.
const maxSuggestions = 3

// Structure converts a route response into renderable blocks and caller
// metadata. It runs fresh on every request, including cache hits: cached
// entries hold the route response, never the rendered blocks.
func Structure(resp *models.QueryResponse, qctx *models.QueryContext) models.StructuredResponse {
	return models.StructuredResponse{
		Blocks: payloadBlocks(resp),
		Metadata: models.ResponseMeta{
			Confidence:  resp.Metadata.Confidence,
			DataSources: dataSources(resp.Metadata.Source),
			Suggestions: suggestions(resp, qctx),
		},
	}
}

func payloadBlocks(resp *models.QueryResponse) []models.Block {
	switch p := resp.Data.(type) {
	case *models.TablePayload:
		return tableBlocks(p)
	case *models.PassagePayload:
		return passageBlocks(p)
	case *models.DirectPayload:
		return []models.Block{{Type: models.BlockText, Content: p.Answer}}
	case *models.ChartPayload:
		return chartBlocks(p)
	case *models.ActionPayload:
		return actionBlocks(p)
	case *models.ErrorPayload:
		return errorBlocks(p)
	case *models.FallbackPayload:
		return fallbackBlocks(p)
	case *models.MergedPayload:
		return append(payloadBlocks(p.Primary), payloadBlocks(p.Secondary)...)
	case *models.HybridPayload:
		var blocks []models.Block
		if p.Database != nil {
			blocks = append(blocks, payloadBlocks(p.Database)...)
		}
		if p.Retrieval != nil {
			blocks = append(blocks, payloadBlocks(p.Retrieval)...)
		}
		return blocks
	default:
		return []models.Block{{Type: models.BlockText, Content: "No content."}}
	}
}

func tableBlocks(p *models.TablePayload) []models.Block {
	total := 0
	truncated := false
	for _, t := range p.Tables {
		total += len(t.Rows)
		truncated = truncated || t.Truncated
	}

	blocks := []models.Block{{Type: models.BlockText, Content: tableSummary(p.Tables, total)}}
	for _, t := range p.Tables {
		blocks = append(blocks, models.Block{Type: models.BlockTable, Content: t.TableName, Data: t})
	}
	if truncated {
		blocks = append(blocks, models.Block{
			Type:    models.BlockCallout,
			Content: "Results were truncated to the row limit. Narrow the query to see everything.",
		})
	}
	return blocks
}

func tableSummary(tables []models.TableResult, total int) string {
	if total == 0 {
		return "No rows matched."
	}
	if len(tables) == 1 {
		return fmt.Sprintf("%s from %s.", countNoun(total, "row"), tables[0].TableName)
	}
	return fmt.Sprintf("%s across %s.", countNoun(total, "row"), countNoun(len(tables), "table"))
}

func passageBlocks(p *models.PassagePayload) []models.Block {
	if len(p.Passages) == 0 {
		return []models.Block{{Type: models.BlockText, Content: "No matching content found."}}
	}

	blocks := []models.Block{{
		Type:    models.BlockText,
		Content: fmt.Sprintf("Found %s.", countNoun(len(p.Passages), "relevant passage")),
	}}
	for _, passage := range p.Passages {
		blocks = append(blocks, models.Block{Type: models.BlockText, Content: passage.Content})
	}
	if len(p.Citations) > 0 {
		blocks = append(blocks, models.Block{Type: models.BlockCitations, Data: p.Citations})
	}
	return blocks
}

func chartBlocks(p *models.ChartPayload) []models.Block {
	return []models.Block{
		{Type: models.BlockText, Content: chartSummary(p)},
		{Type: models.BlockChart, Data: p},
	}
}

func chartSummary(p *models.ChartPayload) string {
	name := p.TableName
	if name == "" {
		name = "Results"
	}
	if p.GroupBy != "" {
		return fmt.Sprintf("%s grouped by %s: %s.", name, p.GroupBy, countNoun(len(p.Groups), "group"))
	}
	if len(p.Groups) == 1 {
		g := p.Groups[0]
		parts := []string{fmt.Sprintf("count = %d", g.Count)}
		for _, v := range g.Values {
			parts = append(parts, fmt.Sprintf("%s of %s = %s", v.Kind, v.Column, formatNumber(v.Value)))
		}
		return fmt.Sprintf("%s: %s.", name, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s.", name, countNoun(len(p.Groups), "result group"))
}

func actionBlocks(p *models.ActionPayload) []models.Block {
	blocks := []models.Block{{Type: models.BlockAction, Content: p.Description, Data: p}}
	switch {
	case p.PermissionDenied:
		blocks = append(blocks, models.Block{Type: models.BlockCallout, Content: p.Reason})
	case p.RequiresConfirmation:
		blocks = append(blocks, models.Block{Type: models.BlockCallout, Content: "This action runs only after you confirm it."})
	}
	return blocks
}

func errorBlocks(p *models.ErrorPayload) []models.Block {
	return []models.Block{{
		Type:    models.BlockCallout,
		Content: fmt.Sprintf("The %s step failed: %s", p.Handler, p.Message),
	}}
}

func fallbackBlocks(p *models.FallbackPayload) []models.Block {
	blocks := []models.Block{{Type: models.BlockCallout, Content: p.Message}}
	if listing := resourceListing(p.AvailableTables, p.AvailablePages); listing != "" {
		blocks = append(blocks, models.Block{Type: models.BlockText, Content: listing})
	}
	return blocks
}

func resourceListing(tables, pages []string) string {
	var parts []string
	if len(tables) > 0 {
		parts = append(parts, "Tables: "+strings.Join(tables, ", "))
	}
	if len(pages) > 0 {
		parts = append(parts, "Pages: "+strings.Join(pages, ", "))
	}
	return strings.Join(parts, ". ")
}

func dataSources(source string) []string {
	if source == "" {
		return []string{}
	}
	return strings.Split(source, "+")
}

// suggestions proposes follow-up queries when the response leaves the user
// without an answer.
func suggestions(resp *models.QueryResponse, qctx *models.QueryContext) []string {
	switch p := resp.Data.(type) {
	case *models.FallbackPayload:
		return p.Suggestions
	case *models.TablePayload:
		if tablesEmpty(p) && qctx != nil {
			return routes.SuggestionsFor(qctx, maxSuggestions)
		}
	case *models.PassagePayload:
		if len(p.Passages) == 0 && qctx != nil {
			return routes.SuggestionsFor(qctx, maxSuggestions)
		}
	}
	return nil
}

func tablesEmpty(p *models.TablePayload) bool {
	for _, t := range p.Tables {
		if len(t.Rows) > 0 {
			return false
		}
	}
	return true
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
