package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/picatz/dohconf/pkg/doh"
	"github.com/picatz/dohconf/pkg/dohconf"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type result struct {
	Server  string   `json:"server"`
	Domain  string   `json:"domain"`
	Status  string   `json:"status"`
	Answers []string `json:"answers"`
}

var CommandQuery = &cobra.Command{
	Use:   "query domains... [flags]",
	Short: "Query DNS records from the configured DoH servers",
	Long: `Query DNS records from DoH servers using the given domains and record type.

The servers come from a resolver configuration given with --config, in either
of its accepted spellings (whitespace-separated URI templates, or a JSON
document with per-server settings); by default the servers from Google,
Cloudflare, and Quad9 are used. Each server is queried in parallel, and each
domain is queried in parallel. Results are streamed to STDOUT as JSON newline
delimited objects, which can be piped to other commands (e.g. jq) or
redirected to a file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configStr, err := cmd.Flags().GetString("config")
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		config, err := dohconf.FromString(configStr)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		queryType := cmd.Flag("type").Value.String()

		qtype, ok := dns.StringToType[strings.ToUpper(queryType)]
		if !ok {
			return fmt.Errorf("invalid record type %q", queryType)
		}

		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}

		retries, err := cmd.Flags().GetInt("retries")
		if err != nil {
			return fmt.Errorf("invalid retries: %w", err)
		}

		bootstrapResolver, err := cmd.Flags().GetString("bootstrap-resolver")
		if err != nil {
			return fmt.Errorf("invalid bootstrap-resolver: %w", err)
		}

		var httpClient = doh.NewClient()
		switch {
		case bootstrapResolver != "":
			httpClient = doh.NewBootstrapClient("udp", bootstrapResolver)
		case retries > 0:
			httpClient = doh.NewRetryClient(retries)
		}

		output := json.NewEncoder(cmd.OutOrStdout())

		var outputMu sync.Mutex

		var (
			ctx    context.Context    = cmd.Context()
			cancel context.CancelFunc = func() {}
		)

		if timeout != 0 {
			ctx, cancel = context.WithTimeout(cmd.Context(), timeout)
		}

		defer cancel()

		eg, gtx := errgroup.WithContext(ctx)

		for _, arg := range args {
			domain := arg

			dnsReq := dns.Msg{
				MsgHdr: dns.MsgHdr{
					RecursionDesired: true,
				},
				Question: []dns.Question{
					{
						Name:   dns.Fqdn(domain),
						Qtype:  qtype,
						Qclass: dns.ClassINET,
					},
				},
			}

			for _, server := range config.Servers() {
				server := server
				eg.Go(func() error {
					resp, err := doh.Query(gtx, httpClient, server, dnsReq)
					if err != nil {
						return err
					}

					answers := make([]string, 0, len(resp.Answer))
					for _, answer := range resp.Answer {
						answers = append(answers, answer.String())
					}

					outputMu.Lock()
					defer outputMu.Unlock()

					return output.Encode(&result{
						Server:  server.Template(),
						Domain:  domain,
						Status:  dns.RcodeToString[resp.Rcode],
						Answers: answers,
					})
				})
			}
		}

		if err := eg.Wait(); err != nil {
			return fmt.Errorf("encountered error while querying: %w", err)
		}

		return nil
	},
}

func init() {
	defaultConfig := strings.Join([]string{
		doh.Google,
		doh.Cloudflare,
		doh.Quad9,
	}, " ")

	CommandQuery.Flags().String("config", defaultConfig, "DoH resolver configuration: URI templates separated by whitespace, or a JSON document")
	CommandQuery.Flags().String("type", "A", "dns record type to query for each domain, such as A, AAAA, MX, etc.")
	CommandQuery.Flags().Duration("timeout", 30*time.Second, "timeout for query, 0s for no timeout")
	CommandQuery.Flags().Int("retries", 0, "number of times to retry failed HTTP requests")
	CommandQuery.Flags().String("bootstrap-resolver", "", "classic DNS resolver address:port used to resolve the DoH server hostnames")

	CommandRoot.AddCommand(CommandQuery)
}
