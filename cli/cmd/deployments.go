package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rewind/api/model"
	"rewind/api/setup"
	"rewind/cli/api"
	"rewind/cli/style"
)

var deploymentsCmd = &cobra.Command{
	Use:     "deployments",
	Short:   "List the recorded deployments of the stage",
	Aliases: []string{"ls", "list"},
	Args:    cobra.NoArgs,
	RunE:    runDeployments,
}

func init() {
	rootCmd.AddCommand(deploymentsCmd)
}

func runDeployments(cmd *cobra.Command, args []string) error {
	svc, err := serviceName()
	if err != nil {
		return err
	}

	var list *api.DeploymentList
	if client != nil {
		list, err = client.Deployments(svc, cfg.Stage, cfg.Region)
	} else {
		list, err = localDeployments(cmd)
	}
	if err != nil {
		return err
	}

	fmt.Print(renderDeployments(list))
	return nil
}

func localDeployments(cmd *cobra.Command) (*api.DeploymentList, error) {
	c, err := setup.Build(cmd.Context(), cfg, project, "cli", logger, nil)
	if err != nil {
		return nil, err
	}
	req, err := request("")
	if err != nil {
		return nil, err
	}
	records, bucket, err := c.Rollback.Deployments(cmd.Context(), req)
	if err != nil {
		return nil, err
	}
	list := &api.DeploymentList{Service: req.Service, Stage: req.Stage, Bucket: bucket}
	for _, rec := range records {
		list.Deployments = append(list.Deployments, toView(rec))
	}
	return list, nil
}

func toView(rec model.DeploymentRecord) api.Deployment {
	ms, _ := rec.Millis()
	return api.Deployment{
		Directory: rec.Directory,
		Timestamp: rec.Timestamp(),
		Millis:    ms,
		Complete:  rec.Complete(),
		Files:     rec.FileNames(),
	}
}

func renderDeployments(list *api.DeploymentList) string {
	var b strings.Builder
	b.WriteString(style.Banner.Render("⟲ DEPLOYMENTS") + style.Subtitle.Render(fmt.Sprintf("  %s / %s  %s", list.Service, list.Stage, list.Bucket)) + "\n")

	if len(list.Deployments) == 0 {
		b.WriteString(style.DimText.Render("No deployments recorded for this stage.") + "\n")
		return b.String()
	}

	header := fmt.Sprintf("  %-2s  %-15s %-22s %s", "", "TIMESTAMP", "DEPLOYED (UTC)", "FILES")
	b.WriteString(style.TableHeader.Render(header) + "\n")

	incomplete := 0
	for _, d := range list.Deployments {
		files := fmt.Sprintf("%d", len(d.Files))
		if !d.Complete {
			incomplete++
			files += style.Incomplete.Render("  missing " + model.TemplateFile)
		}
		fmt.Fprintf(&b, "  %s  %s %s %s\n",
			style.CompleteMark(d.Complete),
			style.Bold.Render(fmt.Sprintf("%-15d", d.Millis)),
			fmt.Sprintf("%-22s", d.Timestamp.UTC().Format(time.DateTime)),
			files,
		)
	}
	b.WriteString("\n")
	if incomplete > 0 {
		b.WriteString(style.Warning.Render(fmt.Sprintf("%d deployment(s) cannot be restored: no stack template.", incomplete)) + "\n")
	}
	return b.String()
}
