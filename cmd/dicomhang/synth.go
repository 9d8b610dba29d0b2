package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrsinham/dicomhang/internal/dicom"
	"github.com/mrsinham/dicomhang/internal/dicom/modalities"
)

// chestPreset is written when no series is given.
var chestPreset = []dicom.SeriesSpec{
	{Modality: "CR", Description: "PA", ViewPosition: "PA", BodyPart: "CHEST"},
	{Modality: "CR", Description: "LAT", ViewPosition: "LL", BodyPart: "CHEST"},
	{Modality: "CT", Description: "Chest Axial", BodyPart: "CHEST", Instances: 20},
}

func newSynthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic DICOM study",
		Long: `Write a small synthetic study to try protocols against. Series are
given as MODALITY[:DESCRIPTION[:INSTANCES[:FRAMES]]], for example
--series CR:PA --series CT:Axial:40. Without series a chest study
(CR PA, CR LAT, CT) is written.`,
		Args: cobra.NoArgs,
		RunE: runSynth,
	}
	cmd.Flags().StringP("output", "o", "study", "output directory")
	cmd.Flags().String("spec", "", "read the study from a YAML file")
	cmd.Flags().String("patient-id", "PAT0001", "patient ID")
	cmd.Flags().String("patient-name", "DOE^JOHN", "patient name")
	cmd.Flags().String("date", "20240101", "study date (YYYYMMDD)")
	cmd.Flags().String("description", "Synthetic study", "study description")
	cmd.Flags().StringArray("series", nil, "series to write (repeatable)")
	cmd.Flags().Int("size", 64, "image width and height in pixels")
	cmd.Flags().String("seed", "", "UID seed (default: derived from patient and date)")
	cmd.Flags().String("quirks", "", "irregularities added to every series: "+quirkList()+" (or 'all')")
	cmd.Flags().BoolP("interactive", "i", false, "describe the study in a form")
	return cmd
}

func runSynth(cmd *cobra.Command, _ []string) error {
	spec, err := synthSpec(cmd)
	if err != nil {
		return err
	}
	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if err := runSynthForm(&spec); err != nil {
			return err
		}
	}

	raw, _ := cmd.Flags().GetString("quirks")
	quirks, err := dicom.ParseQuirks(raw)
	if err != nil {
		return err
	}
	for i := range spec.Series {
		spec.Series[i].Quirks = append(spec.Series[i].Quirks, quirks...)
	}

	out, _ := cmd.Flags().GetString("output")
	written, err := dicom.WriteStudy(out, spec)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("✓ Wrote %d files", len(written.Files))))
	fmt.Fprintf(w, "  Study:     %s\n", written.StudyInstanceUID)
	fmt.Fprintf(w, "  Directory: %s\n", dimStyle.Render(written.Dir))
	return nil
}

func synthSpec(cmd *cobra.Command) (dicom.StudySpec, error) {
	flags := cmd.Flags()
	if path, _ := flags.GetString("spec"); path != "" {
		return loadStudySpec(path)
	}

	spec := dicom.StudySpec{}
	spec.PatientID, _ = flags.GetString("patient-id")
	spec.PatientName, _ = flags.GetString("patient-name")
	spec.StudyDate, _ = flags.GetString("date")
	spec.StudyDescription, _ = flags.GetString("description")
	spec.Seed, _ = flags.GetString("seed")
	size, _ := flags.GetInt("size")
	spec.Width, spec.Height = size, size

	raw, _ := flags.GetStringArray("series")
	if len(raw) == 0 {
		spec.Series = append([]dicom.SeriesSpec(nil), chestPreset...)
		return spec, nil
	}
	for _, r := range raw {
		s, err := parseSeries(r)
		if err != nil {
			return dicom.StudySpec{}, err
		}
		spec.Series = append(spec.Series, s)
	}
	return spec, nil
}

func loadStudySpec(path string) (dicom.StudySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dicom.StudySpec{}, fmt.Errorf("read study spec: %w", err)
	}
	var spec dicom.StudySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return dicom.StudySpec{}, fmt.Errorf("parse study spec %s: %w", path, err)
	}
	return spec, nil
}

// parseSeries reads MODALITY[:DESCRIPTION[:INSTANCES[:FRAMES]]].
func parseSeries(raw string) (dicom.SeriesSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) > 4 {
		return dicom.SeriesSpec{}, fmt.Errorf("series %q: too many fields", raw)
	}
	s := dicom.SeriesSpec{Modality: strings.ToUpper(strings.TrimSpace(parts[0]))}
	if !modalities.IsValid(s.Modality) {
		return dicom.SeriesSpec{}, fmt.Errorf("series %q: unknown modality %q", raw, parts[0])
	}
	if len(parts) > 1 {
		s.Description = parts[1]
	}
	counts := []*int{&s.Instances, &s.Frames}
	for i, field := range parts[min(len(parts), 2):] {
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			return dicom.SeriesSpec{}, fmt.Errorf("series %q: %q must be a positive number", raw, field)
		}
		*counts[i] = n
	}
	return s, nil
}

// runSynthForm lets the user adjust the study before it is written.
func runSynthForm(spec *dicom.StudySpec) error {
	var selected []string
	for _, s := range spec.Series {
		selected = append(selected, s.Modality)
	}
	instances := "1"

	var options []huh.Option[string]
	for _, m := range modalities.All() {
		options = append(options, huh.NewOption(string(m), string(m)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("patient_id").
				Title("Patient ID").
				Value(&spec.PatientID).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("patient ID is required")
					}
					return nil
				}),
			huh.NewInput().
				Key("description").
				Title("Study Description").
				Value(&spec.StudyDescription),
			huh.NewInput().
				Key("date").
				Title("Study Date").
				Placeholder("YYYYMMDD").
				Value(&spec.StudyDate),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("modalities").
				Title("Series").
				Description("One series per modality").
				Options(options...).
				Value(&selected),
			huh.NewInput().
				Key("instances").
				Title("Instances per stacked series").
				Value(&instances).
				Validate(validatePositiveInt),
		),
	).WithShowHelp(false).WithShowErrors(true)

	if err := form.Run(); err != nil {
		return err
	}

	n, _ := strconv.Atoi(instances)
	spec.Series = spec.Series[:0]
	for _, m := range selected {
		s := dicom.SeriesSpec{Modality: m, Description: m}
		if !modalities.IsSingleImage(m) {
			s.Instances = n
		}
		spec.Series = append(spec.Series, s)
	}
	return nil
}

func quirkList() string {
	var names []string
	for _, q := range dicom.AllQuirks() {
		names = append(names, string(q))
	}
	return strings.Join(names, ",")
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
