package help

const ColdstartYAML = `# manga-downloadr Quick Start

commands:
  download: |
    manga-downloadr --url "http://www.mangareader.net/naruto" --name naruto

  custom_directory: |
    manga-downloadr -u "http://www.mangareader.net/naruto" -n naruto -d /tmp/manga

  status: |
    manga-downloadr status --name naruto

stages:
  chapterUrls: "Read the chapter listing and title from --url"
  pageUrls: "Read the page menu of every chapter"
  imageUrls: "Read the image URL and label of every page"
  images: "Download, resize and recompress every image"
  ebooks: "Compile images into PDF volumes of 250 pages"

resume:
  - "Progress is checkpointed in $TMPDIR/<name>.yaml after every stage"
  - "Re-running with the same --name skips completed stages"
  - "Images already on disk are never downloaded again"
  - "Delete the checkpoint to start a job from scratch"

key_files:
  - "<directory>/<name>/<Chapter>/<Page>.<ext> (downloaded images)"
  - "<directory>/<name>/<Title> <N>.pdf (compiled volumes)"
  - "<directory>/<name>/volumes.yaml (volume manifest)"
  - "<directory>/manga-downloadr.db (run history, see 'status')"

error_behavior:
  - "A page whose image label is not '<chapter> - <page>' is skipped"
  - "Failed items are logged and listed by 'status'; the stage still completes"
  - "A failed volume does not stop the others, but the ebooks stage is rerun next time"
  - "Exit codes: 0=success, 1=invalid arguments or stopped run"
`
