package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/orchestrator"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

const certPasswordEnv = "REHABDOCS_CERT_PASSWORD"

// issueFlags are shared by issue and batch.
type issueFlags struct {
	caseID      int64
	clientID    int64
	name        string
	identityRef string
	options     string
	requestedBy string
}

func (f *issueFlags) register(fs *pflag.FlagSet) {
	fs.Int64Var(&f.caseID, "case", 0, "case id")
	fs.Int64Var(&f.clientID, "client", 0, "client id")
	fs.StringVar(&f.name, "name", "", "applicant name")
	fs.StringVar(&f.identityRef, "identity", "", "vault token of the applicant's resident registration number")
	fs.StringVar(&f.options, "options", "", "endpoint options as JSON, e.g. {\"cert_type\":\"CERT\"}")
	fs.StringVar(&f.requestedBy, "requested-by", "cli", "operator recorded on issued artifacts")
}

func markRequired(c *cobra.Command, names ...string) {
	for _, n := range names {
		_ = c.MarkFlagRequired(n)
	}
}

func (f *issueFlags) parseOptions() (gateway.Options, error) {
	var o gateway.Options
	if f.options == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(f.options), &o); err != nil {
		return o, fmt.Errorf("--options: %w", err)
	}
	return o, nil
}

type issueOutput struct {
	DocumentType document.Type   `json:"document_type"`
	Success      bool            `json:"success"`
	ArtifactID   *uuid.UUID      `json:"artifact_id,omitempty"`
	Artifact     json.RawMessage `json:"artifact,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func newIssueCmd(opts *rootOptions) *cobra.Command {
	var (
		f  issueFlags
		dt string
	)
	c := &cobra.Command{
		Use:   "issue",
		Short: "Issue one required document of a case",
		Long: `Issue one required document of a case through the Hyphen API.

Certificate-file authentication ({"cert_type":"CERT"}) uses the client's
registered certificate; its password is read from ` + certPasswordEnv + `.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			t, err := document.Parse(dt)
			if err != nil {
				return err
			}
			o, err := f.parseOptions()
			if err != nil {
				return err
			}
			orch, err := a.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			res := orch.Issue(cmd.Context(), orchestrator.IssuanceRequest{
				CaseID:              f.caseID,
				ClientID:            f.clientID,
				DocumentType:        t,
				Name:                f.name,
				IdentityRef:         vault.EncryptedBlob(f.identityRef),
				Options:             o,
				CertificatePassword: os.Getenv(certPasswordEnv),
				RequestedBy:         f.requestedBy,
			})
			if err := printJSON(cmd, issueOutput{
				DocumentType: res.DocumentType,
				Success:      res.Success,
				ArtifactID:   res.ArtifactID,
				Artifact:     res.Artifact,
				ErrorCode:    res.ErrorCode,
				ErrorMessage: res.ErrorMessage,
			}); err != nil {
				return err
			}
			if !res.Success {
				if res.Err != nil {
					return res.Err
				}
				return fmt.Errorf("issue %s: %s", res.DocumentType, res.ErrorMessage)
			}
			return nil
		}),
	}
	f.register(c.Flags())
	c.Flags().StringVar(&dt, "type", "", "document type, e.g. resident_register")
	markRequired(c, "case", "name", "identity", "type")
	return c
}

type batchOutput struct {
	Succeeded []issueOutput `json:"succeeded"`
	Failed    []issueOutput `json:"failed"`
}

func batchItems(items []orchestrator.BatchItem) []issueOutput {
	out := make([]issueOutput, 0, len(items))
	for _, it := range items {
		out = append(out, issueOutput{
			DocumentType: it.DocumentType,
			Success:      it.Err == nil,
			ArtifactID:   it.ArtifactID,
			ErrorCode:    it.ErrorCode,
			ErrorMessage: it.ErrorMessage,
		})
	}
	return out
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var f issueFlags
	c := &cobra.Command{
		Use:   "batch",
		Short: "Issue every pending auto-issuable document of a case",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			o, err := f.parseOptions()
			if err != nil {
				return err
			}
			orch, err := a.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			res, err := orch.BatchIssue(cmd.Context(), orchestrator.BatchRequest{
				CaseID:              f.caseID,
				ClientID:            f.clientID,
				Name:                f.name,
				IdentityRef:         vault.EncryptedBlob(f.identityRef),
				Options:             o,
				CertificatePassword: os.Getenv(certPasswordEnv),
				RequestedBy:         f.requestedBy,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd, batchOutput{
				Succeeded: batchItems(res.Succeeded),
				Failed:    batchItems(res.Failed),
			}); err != nil {
				return err
			}
			if n := len(res.Failed); n > 0 {
				return fmt.Errorf("%d of %d documents failed", n, n+len(res.Succeeded))
			}
			return nil
		}),
	}
	f.register(c.Flags())
	markRequired(c, "case", "name", "identity")
	return c
}

func newMissingCmd(opts *rootOptions) *cobra.Command {
	var caseID int64
	c := &cobra.Command{
		Use:   "missing",
		Short: "List the required documents a case still lacks",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			orch, err := a.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			docs, err := orch.MissingDocuments(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			if docs == nil {
				docs = []orchestrator.MissingDocument{}
			}
			return printJSON(cmd, docs)
		}),
	}
	c.Flags().Int64Var(&caseID, "case", 0, "case id")
	markRequired(c, "case")
	return c
}
