package tree

// AssignmentError represents an error assigning a sample to a node
type AssignmentError string

/*
ErrNoMatchingNode is the error returned by the Assign method of a tree when
the sample does not satisfy the criterion of any subtree of a node, as
happens when it has an undefined value for the covariate that splits it.
*/
const ErrNoMatchingNode = AssignmentError("sample does not satisfy any subtree criterion")

func (ae AssignmentError) Error() string {
	return string(ae)
}
