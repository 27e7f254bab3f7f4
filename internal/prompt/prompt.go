// Package prompt builds the analysis directives and the chat grounding
// instruction sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/outubeused26-commits/FloraVeda/internal/domain"
)

// Persona is the system instruction attached to every analysis call.
const Persona = "You are an expert botanist and Vastu Shastra consultant. " +
	"Identify plants accurately. Act as 'Dr. Green', a professional plant " +
	"pathologist, when filling out the healthAssessment."

// VerificationMessage is the canned verification text used in text-only mode,
// where the claimed name is trusted outright.
func VerificationMessage(plantName string) string {
	return fmt.Sprintf("Care instructions generated for %s.", plantName)
}

// Analysis composes the text directive for one analysis call. Exactly one of
// three branches applies, chosen by the presence of an image and a claimed
// plant name. Callers guarantee that plantName is set when hasImage is false.
func Analysis(country, plantName string, hasImage bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user is currently in this country: %q.\n", country)

	switch {
	case hasImage && plantName != "":
		fmt.Fprintf(&b, "The user claims the plant in the image is named: %q.\n", plantName)
		b.WriteString("1. Identify the plant in the image.\n")
		fmt.Fprintf(&b, "2. Compare your identification with the user's claimed name (%q).\n", plantName)
		b.WriteString("3. If the image reasonably matches the user's name (allow for synonyms or broad categories), set 'isMatch' to true.\n")
		b.WriteString("4. If the image is CLEARLY a different plant, set 'isMatch' to false.\n")
	case hasImage:
		b.WriteString("The user has NOT provided a plant name.\n")
		b.WriteString("1. Identify the plant in the image.\n")
		b.WriteString("2. If you can identify it with high confidence, set 'isMatch' to true.\n")
		b.WriteString("3. If the image is too blurry, generic, or ambiguous (could be multiple distinct plants) and you cannot be sure, set 'isMatch' to false.\n")
	default:
		fmt.Fprintf(&b, "NO IMAGE PROVIDED. The user specifically wants information about the plant named: %q.\n", plantName)
		b.WriteString("1. Assume the user's identification is correct.\n")
		b.WriteString("2. Set 'isMatch' to true.\n")
		fmt.Fprintf(&b, "3. Set 'verificationMessage' to %q.\n", VerificationMessage(plantName))
		fmt.Fprintf(&b, "4. Provide details for %q.\n", plantName)
	}

	fmt.Fprintf(&b, "5. Provide detailed care instructions specifically optimized for the climate in %q.\n", country)
	b.WriteString("6. Provide specific Vastu Shastra advice. IMPORTANT: You must populate the 'vastuDetails' object with specific directions (North, North-East, etc) for the visual compass.\n")
	b.WriteString("7. Provide a 'stepByStepGuide' that explains everything a beginner needs to know in simple English, formatted as \"Point 1: ...\", \"Point 2: ...\", etc.\n")
	b.WriteString("8. PLANT DOCTOR DIAGNOSIS:\n")
	if hasImage {
		b.WriteString("   - Analyze the visual evidence in the image for health issues (color, texture, spots, drooping).\n")
		b.WriteString("   - If the plant is SICK or NEEDS_ATTENTION: identify specific pests if visible, provide a 'detailedDiagnosis' explaining the root cause, and provide 3-5 specific 'actionableSteps' for treatment.\n")
	} else {
		b.WriteString("   - No image is provided, so set status to 'HEALTHY' and fill 'actionableSteps' with general preventative maintenance. Do not invent visual symptoms.\n")
	}
	return b.String()
}

// ChatSystemInstruction builds the immutable grounding context for a chat
// session, embedding the diagnosis from a completed analysis. Later user turns
// cannot alter it.
func ChatSystemInstruction(report *domain.PlantReport, country string) string {
	var b strings.Builder
	b.WriteString("You are 'Dr. Green', a friendly but highly professional Plant Doctor and Botanist.\n\n")
	fmt.Fprintf(&b, "The user is located in %s.\n", country)
	fmt.Fprintf(&b, "The plant in question is %q (%s).\n\n", report.CommonName, report.ScientificName)
	b.WriteString("Key Context from your diagnosis:\n")
	fmt.Fprintf(&b, "- Health Status: %s\n", report.HealthAssessment.Status)
	fmt.Fprintf(&b, "- Issues: %s\n", strings.Join(report.HealthAssessment.Issues, ", "))
	fmt.Fprintf(&b, "- Remedy: %s\n", report.HealthAssessment.Remedy)
	fmt.Fprintf(&b, "- Detailed Diagnosis: %s\n\n", report.HealthAssessment.DetailedDiagnosis)
	b.WriteString("Your Goal:\n")
	b.WriteString("- Answer questions about this specific plant's health, care, and Vastu placement.\n")
	b.WriteString("- Use a reassuring, doctor-like tone (e.g., \"I recommend...\", \"The prognosis is...\").\n")
	b.WriteString("- Be concise and practical.\n")
	b.WriteString("- If the plant is SICK, prioritize healing advice based on the actionable steps identified.\n")
	return b.String()
}
