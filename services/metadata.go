package services

import (
	"fmt"
	"strings"

	"bounty-quest/models"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	awardCollection  = "BountyQuestWinners"
	achievementLabel = "Bounty Winner"
)

// BuildAwardMetadata describes the award minted for a task's winner. It depends only on the task,
// so repeated builds produce the same document.
func BuildAwardMetadata(task *models.Task, publicBaseURL string) models.AwardMetadata {
	base := strings.TrimRight(publicBaseURL, "/")
	completedOn := task.EndTime.UTC().Format("2006-01-02")
	category := cases.Title(language.English).String(string(task.Category))

	return models.AwardMetadata{
		Name:        fmt.Sprintf("Bounty Quest Winner: %s", task.Title),
		Description: fmt.Sprintf("Awarded for completing the task: %s", task.Description),
		ExternalURL: fmt.Sprintf("%s/tasks/%s", base, task.ID),
		URI:         MetadataURL(publicBaseURL, task.ID),
		Collection:  awardCollection,
		Attributes: []models.MetadataTrait{
			{TraitType: "Category", Value: category},
			{TraitType: "Completion Date", Value: completedOn},
			{TraitType: "Achievement", Value: achievementLabel},
			{TraitType: "Requirements", Value: fmt.Sprint(len(task.Requirements))},
		},
		Properties: map[string]string{
			"taskId":          task.ID,
			"category":        string(task.Category),
			"completedOn":     completedOn,
			"achievementType": achievementLabel,
		},
	}
}

// MetadataURL is where the API serves a task's award metadata.
func MetadataURL(publicBaseURL, taskID string) string {
	return fmt.Sprintf("%s/nft/metadata/%s", strings.TrimRight(publicBaseURL, "/"), taskID)
}

// MetadataObjectKey names the stored metadata document for a task.
func MetadataObjectKey(task *models.Task) string {
	name := slug.Make(task.Title)
	if name == "" {
		return fmt.Sprintf("metadata/%s.json", task.ID)
	}
	return fmt.Sprintf("metadata/%s-%s.json", name, task.ID)
}
