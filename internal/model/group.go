package model

// Shared-elective subjects are pooled across the two 6th-grade tracks so
// either track can be matched against the other.
var sharedSubjects = map[string]bool{
	"islamic": true,
	"arabic":  true,
	"english": true,
}

var sharedGrades = map[string]bool{
	"6sci": true,
	"6lit": true,
}

// GroupKey derives the queue partition for a (grade, subject) pair.
func GroupKey(grade, subject string) string {
	if sharedSubjects[subject] && sharedGrades[grade] {
		return "6shared_" + subject
	}
	return grade + "_" + subject
}

// GradePool returns the set of grades whose questions are eligible for the
// given (grade, subject) pair. For shared electives both 6th-grade tracks
// draw from one pool.
func GradePool(grade, subject string) []string {
	if sharedSubjects[subject] && sharedGrades[grade] {
		return []string{"6sci", "6lit"}
	}
	return []string{grade}
}
