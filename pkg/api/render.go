/*
2019 © Postgres.ai
*/

package api

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
)

// renderMetrics renders the snapshot as a two-column table.
func renderMetrics(w io.Writer, s sqlexec.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Metric", "Value"})
	table.AppendBulk([][]string{
		{"Total requests", humanize.Comma(int64(s.TotalRequests))},
		{"Successful requests", humanize.Comma(int64(s.SuccessfulRequests))},
		{"Failed requests", humanize.Comma(int64(s.FailedRequests))},
		{"Total retries", humanize.Comma(int64(s.TotalRetries))},
		{"Success rate", s.SuccessRate},
		{"Average response time", fmt.Sprintf("%.2f ms", s.AverageResponseTime)},
		{"Active requests", strconv.Itoa(s.ActiveRequests)},
		{"Queued requests", strconv.Itoa(s.QueuedRequests)},
	})
	table.Render()
}
