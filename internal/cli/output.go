package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/clean-dependency-project/wagoctl/internal/storage"
	"github.com/clean-dependency-project/wagoctl/internal/wago"
)

// flavorPatches is one row of the game-versions output.
type flavorPatches struct {
	Flavor  wago.Flavor `json:"flavor"`
	Patches []string    `json:"patches"`
}

// flavorDisplayName renders a flavor for humans: "retail" -> "Retail",
// "bc" -> "BC".
func flavorDisplayName(f wago.Flavor) string {
	if len(f) <= 2 {
		return cases.Upper(language.English).String(string(f))
	}
	return cases.Title(language.English).String(string(f))
}

func (s *session) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(s.out, string(data))
	return err
}

func (s *session) printGameVersions(listing []flavorPatches) error {
	if s.output == outputJSON {
		return s.printJSON(listing)
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, row := range listing {
		patches := strings.Join(row.Patches, ", ")
		if patches == "" {
			patches = "-"
		}
		fmt.Fprintf(tw, "%s:\t%s\n", flavorDisplayName(row.Flavor), patches)
	}
	return tw.Flush()
}

func (s *session) printCategories(categories []wago.AddonCategory) error {
	if s.output == outputJSON {
		if categories == nil {
			categories = []wago.AddonCategory{}
		}
		return s.printJSON(categories)
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, cat := range categories {
		fmt.Fprintf(tw, "%d\t%s\n", cat.ID, cat.DisplayName)
	}
	return tw.Flush()
}

func (s *session) printMetadata(md *wago.AddonMetadata) error {
	if s.output == outputJSON {
		return s.printJSON(md)
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Label:\t%s\n", md.Label)
	fmt.Fprintf(tw, "Stability:\t%s\n", md.Stability)
	for _, f := range wago.Flavors() {
		if patches := md.Patches(f); len(patches) > 0 {
			fmt.Fprintf(tw, "%s:\t%s\n", flavorDisplayName(f), strings.Join(patches, ", "))
		}
	}
	if md.Changelog != "" {
		fmt.Fprintf(tw, "Changelog:\t%d characters\n", len(md.Changelog))
	}
	fmt.Fprintln(tw, "Metadata is valid.")
	return tw.Flush()
}

func (s *session) printUploadResult(r *UploadResult) error {
	if s.output == outputJSON {
		return s.printJSON(r)
	}

	var err error
	switch {
	case r.DryRun:
		_, err = fmt.Fprintf(s.out, "Dry run: %s is ready to upload to project %s (upload id %s)\n",
			r.Metadata.Label, r.ProjectID, r.UploadID)
	default:
		_, err = fmt.Fprintf(s.out, "Uploaded %s to project %s (HTTP %d, upload id %s)\n",
			r.Metadata.Label, r.ProjectID, r.StatusCode, r.UploadID)
	}
	return err
}

func (s *session) printHistory(uploads []*storage.Upload) error {
	if s.output == outputJSON {
		data, err := storage.ExportJSON(uploads)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.out, string(data))
		return err
	}

	if len(uploads) == 0 {
		_, err := fmt.Fprintln(s.out, "No uploads recorded.")
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UPLOADED\tID\tPROJECT\tLABEL\tSTABILITY\tSTATUS\tPATCHES\tFILE")
	for _, u := range uploads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			u.UploadedAt.Format("2006-01-02 15:04"), u.UploadID, u.ProjectID, u.Label, u.Stability, u.Status,
			formatPatches(u), u.Filename)
	}
	return tw.Flush()
}

func (s *session) printUpload(u *storage.Upload) error {
	if s.output == outputJSON {
		return s.printJSON(u)
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Upload ID:\t%s\n", u.UploadID)
	fmt.Fprintf(tw, "Uploaded:\t%s\n", u.UploadedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(tw, "Project:\t%s\n", u.ProjectID)
	fmt.Fprintf(tw, "Label:\t%s\n", u.Label)
	fmt.Fprintf(tw, "Stability:\t%s\n", u.Stability)
	fmt.Fprintf(tw, "File:\t%s (%d bytes)\n", u.Filename, u.FileSize)
	fmt.Fprintf(tw, "SHA-256:\t%s\n", u.SHA256)
	fmt.Fprintf(tw, "Patches:\t%s\n", formatPatches(u))
	fmt.Fprintf(tw, "Signature verified:\t%t\n", u.SignatureVerified)
	fmt.Fprintf(tw, "Malware scanned:\t%t\n", u.MalwareScanned)
	fmt.Fprintf(tw, "Status:\t%s\n", u.Status)
	if u.StatusCode != 0 {
		fmt.Fprintf(tw, "HTTP status:\t%d\n", u.StatusCode)
	}
	if u.RemoteID != "" {
		fmt.Fprintf(tw, "Remote ID:\t%s\n", u.RemoteID)
	}
	if u.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", u.ErrorMessage)
	}
	return tw.Flush()
}

// formatPatches renders the recorded patches in flavor order, for example
// "retail 10.2.6; classic 1.15.1".
func formatPatches(u *storage.Upload) string {
	patches, err := u.GetPatches()
	if err != nil {
		return "?"
	}

	var parts []string
	for _, f := range wago.Flavors() {
		if p := patches[string(f)]; len(p) > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", f, strings.Join(p, ",")))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}
