// Package status aggregates item statuses into a block or order status.
package status

import "comictracker/pkg/models"

// Aggregate applies, in order:
//  1. empty input is not started
//  2. all skipped is skipped
//  3. all skipped or finished is finished
//  4. anything started and anything unfinished is in progress
//  5. otherwise not started
//
// One unfinished item keeps the whole set in progress.
func Aggregate[S models.Phased](statuses []S) models.Phase {
	if len(statuses) == 0 {
		return models.PhaseNotStarted
	}

	allSkipped := true
	allDone := true
	anyStarted := false
	anyUnfinished := false

	for _, s := range statuses {
		p := s.Phase()
		switch p {
		case models.PhaseSkipped:
		case models.PhaseFinished:
			allSkipped = false
		case models.PhaseNotStarted, models.PhaseInProgress:
			allSkipped = false
			allDone = false
		}
		if p != models.PhaseNotStarted {
			anyStarted = true
		}
		if p != models.PhaseFinished {
			anyUnfinished = true
		}
	}

	switch {
	case allSkipped:
		return models.PhaseSkipped
	case allDone:
		return models.PhaseFinished
	case anyStarted && anyUnfinished:
		return models.PhaseInProgress
	}
	return models.PhaseNotStarted
}

// ForStoryBlock derives a story block status from its issues.
func ForStoryBlock(issues []models.IssueStatus) models.StoryBlockStatus {
	return models.StoryBlockStatusFor(Aggregate(issues))
}

// ForReadingOrder derives a reading order status from its story blocks.
func ForReadingOrder(blocks []models.StoryBlockStatus) models.StoryBlockStatus {
	return models.StoryBlockStatusFor(Aggregate(blocks))
}
