// Package prompts holds the prompt text sent to the vision model and the
// builders that assemble the per-media-type analysis request.
package prompts

import (
	"fmt"
	"strings"
)

// SystemPrompt defines the analyst role for every media type.
const SystemPrompt = `You're a meme expert. You're very smart and see meanings between the lines. ` +
	`You know all famous persons and all characters from every show, movie and game. ` +
	`Use correct meme names (like Pepe, Wojak, etc.) and media references.`

// fieldSpec is the JSON object contract shared by all user prompts. The
// five descriptive fields plus tags; the tags instruction is appended
// dynamically from the current vocabulary.
const fieldSpec = `{references: "Analyze the image to see if it features any famous persons or ` +
	`characters from movies, shows, cartoons or games. If it does, put that information here. If not, omit", ` +
	`template: "If the image features an established meme character or template ` +
	`(such as 'trollface', 'wojak', 'Pepe the Frog', 'Loss'), name it here, otherwise omit", ` +
	`caption: "If the image includes any captions, put them here in the original language, otherwise omit", ` +
	`description: "Describe the image with its captions (if any) in mind", ` +
	`meaning: "Explain what this meme means, using information you determined earlier", ` +
	`tags: %s}`

// Per-media-type framing. The variants differ only in how the attached
// samples are introduced; the requested structure is identical.
const (
	imageFraming = `This image is a meme. Analyze it and return json of the following structure: `

	animationFraming = `These images are frames sampled from an animated meme, in playback order. ` +
		`Treat them as one meme. Analyze it and return json of the following structure: `

	albumFraming = `These images form an ordered album that works as a single meme; the sequence matters. ` +
		`Analyze the album as a whole and return json of the following structure: `
)

// TagInstruction builds the dynamic tags-field instruction from the
// current whitelist of suggestable tag names and descriptions. The model
// must choose only from this list; unknown names are discarded downstream.
// Parameters:
//   - names: tag names the AI may suggest.
//   - descriptions: description per name (same index; empty entries allowed).
//
// Returns:
//   - string: instruction text for the tags field.
func TagInstruction(names, descriptions []string) string {
	if len(names) == 0 {
		return `"Omit this field"`
	}

	var vocab strings.Builder
	for i, name := range names {
		if i > 0 {
			vocab.WriteString("; ")
		}
		vocab.WriteString(name)
		if i < len(descriptions) && descriptions[i] != "" {
			vocab.WriteString(" (")
			vocab.WriteString(descriptions[i])
			vocab.WriteString(")")
		}
	}

	return fmt.Sprintf(`"Pick every tag that applies to this meme, strictly from this list, `+
		`and return them as a json array of strings. Do not invent tags that are not listed. `+
		`The list, with explanations in parentheses: %s"`, vocab.String())
}

// ImagePrompt returns the user prompt for a single still image.
func ImagePrompt(tagInstruction string) string {
	return imageFraming + fmt.Sprintf(fieldSpec, tagInstruction)
}

// AnimationPrompt returns the user prompt for sampled GIF or video frames.
func AnimationPrompt(tagInstruction string) string {
	return animationFraming + fmt.Sprintf(fieldSpec, tagInstruction)
}

// AlbumPrompt returns the user prompt for an ordered image album.
func AlbumPrompt(tagInstruction string) string {
	return albumFraming + fmt.Sprintf(fieldSpec, tagInstruction)
}
