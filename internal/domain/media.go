package domain

// ImageAsset pairs a source image URL with the public path of its stored copy.
type ImageAsset struct {
	Source string `json:"sourceImage"`
	Served string `json:"salezImage"`
}

// VideoAsset pairs a source video URL with the public path of its stored or already known copy.
type VideoAsset struct {
	Source string `json:"sourceVideo"`
	Served string `json:"salezVideo"`
}

// VideoStatus is the video service's answer to whether a source video was already stored.
type VideoStatus struct {
	Exists     bool   `json:"exists"`
	SalezVideo string `json:"salezVideo"`
}
