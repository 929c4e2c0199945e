package artifacts

import "github.com/dukex/botportal/pkg/models"

// ImageNavigator steps through the images of an execution. Moving past the
// first or last image does nothing.
type ImageNavigator struct {
	images []models.ExecutionFile
	index  int
}

func NewImageNavigator(images []models.ExecutionFile) *ImageNavigator {
	return &ImageNavigator{images: images, index: -1}
}

// Open shows the image at i. It reports false when i is out of range.
func (n *ImageNavigator) Open(i int) bool {
	if i < 0 || i >= len(n.images) {
		return false
	}

	n.index = i

	return true
}

// OpenPath shows the image with the given path.
func (n *ImageNavigator) OpenPath(path string) bool {
	for i, image := range n.images {
		if image.Path == path {
			n.index = i

			return true
		}
	}

	return false
}

func (n *ImageNavigator) Next() bool {
	if !n.IsOpen() || n.index >= len(n.images)-1 {
		return false
	}

	n.index++

	return true
}

func (n *ImageNavigator) Prev() bool {
	if !n.IsOpen() || n.index == 0 {
		return false
	}

	n.index--

	return true
}

func (n *ImageNavigator) Close() {
	n.index = -1
}

func (n *ImageNavigator) IsOpen() bool {
	return n.index >= 0
}

// Current returns the image being shown.
func (n *ImageNavigator) Current() (models.ExecutionFile, bool) {
	if !n.IsOpen() {
		return models.ExecutionFile{}, false
	}

	return n.images[n.index], true
}

// Position returns the 1-based position of the current image and the total.
func (n *ImageNavigator) Position() (int, int) {
	return n.index + 1, len(n.images)
}

func (n *ImageNavigator) HasPrev() bool {
	return n.IsOpen() && n.index > 0
}

func (n *ImageNavigator) HasNext() bool {
	return n.IsOpen() && n.index < len(n.images)-1
}
